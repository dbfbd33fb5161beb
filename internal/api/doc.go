// Package api implements the gateway's HTTP server and websocket hub.
//
// Routes:
//
//	GET  /health              liveness and counts
//	GET  /devices             every device, JSON array
//	GET  /devices/{key}       one device by unit or address, 404 if unknown
//	POST {gsm.upload_path}    GSM report batch; 204 then ingest
//	GET  {websocket.path}     subscriber channel
//	GET  {metrics.path}       Prometheus scrape
//
// Other methods on /devices and the upload path get a 405 JSON error.
//
// # Subscribers
//
// A new subscriber first receives {"type":"device:add","data":[...]} with
// every device, then one message per registry event. Every broadcast
// re-arms a keep-alive timer; when it fires {"type":"ping"} is broadcast.
// Subscribers may send "ping" or {"type":"ping"} and get "pong" or
// {"type":"pong"} back. Nothing else is read.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	cancel := registry.Subscribe(server.Hub().HandleEvent)
//	server.Start(ctx)
//	defer server.Close()
package api
