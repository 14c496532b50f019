package ingress

import "go.uber.org/fx"

// Module wires the HTTP/websocket ingress surface for fx-based assembly
// in cmd/coreengine's "server" subcommand.
var Module = fx.Options(
	fx.Provide(NewServer, NewRouter),
	fx.Invoke(func(*Router) {}),
)
