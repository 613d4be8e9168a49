// Package environment names the deployment environment the service runs in
// and carries it through context.Context.
//
// Parse normalises the APP_ENV value ("prod", "stage", "dev" and the long
// forms) so the logger factory and the server wiring agree on one value.
package environment
