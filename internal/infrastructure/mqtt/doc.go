// Package mqtt publishes litemodel's change feed over MQTT.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - A ChangeFeed that turns committed model mutations into messages
//   - WatchChanges for processes that consume the feed
//
// # Topics
//
//	{prefix}/changes/{table}   one message per committed mutation, not retained
//	{prefix}/system/status     retained online/offline status and LWT
//
// A change message is the JSON form of model.ChangeEvent:
//
//	{"table":"users","op":"insert","rows":1,"tx_id":"…","time":"2025-01-02T03:04:05Z"}
//
// Events are published only after the transaction that produced them has
// committed, so a rolled-back write never appears on the feed.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	feed := mqtt.NewChangeFeed(client, client.Topics(), client.QoS(), 0)
//	defer feed.Close()
//	users, _ := model.New("users", model.Deps{Tx: mgr, Changes: feed})
package mqtt
