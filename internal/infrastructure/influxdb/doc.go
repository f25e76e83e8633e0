// Package influxdb records litemodel's runtime metrics in InfluxDB.
//
// The Client satisfies model.Metrics, pool.Observer and txn.Observer, so one
// connection can be handed to every layer:
//
//	metrics, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer metrics.Close()
//
//	p := pool.New(engine.Connect, pool.Options{Size: 5})
//	p.SetObserver(metrics)
//	mgr := txn.NewManager(p)
//	mgr.SetObserver(metrics)
//	users, _ := model.New("users", model.Deps{Tx: mgr, Metrics: metrics})
//	go metrics.ReportPoolStats(ctx, p.Stats, 15*time.Second)
//
// # Measurements
//
//	litemodel_statement    tags table, op, outcome; fields duration_ms, rows
//	litemodel_transaction  tags outcome; fields duration_ms, tx_id
//	litemodel_pool_acquire tags outcome; fields wait_ms
//	litemodel_pool         pool.Stats snapshot fields
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch failures are reported through SetOnError.
package influxdb
