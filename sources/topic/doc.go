// Package topic provides an in-process publish/subscribe event source.
//
// A Hub runs an event loop that delivers published messages to the one
// callback subscribed to it, usually a dispatch.KeyedCategory routing by
// topic. Listeners can narrow delivery with glob patterns through Match.
//
//	hub := topic.NewHub("orders", 256)
//	orders := dispatch.NewKeyedCategory(f, "orders", hub, topic.KeyOf)
//	orders.Listen(ctx, "order:created", Billing, "OnCreated",
//	    dispatch.WithArgs(params.Key(0, "Data")))
//	registry.Register(hub)
//
//	hub.Publish("order:created", order)
package topic
