// Package config defines the client configuration: transport selection,
// reconnect policy, deployment theme settings and metrics exposure.
//
// Configuration is loaded from a JSON file with defaults underneath and
// CHAMELEON_* environment variables on top. Validation happens at load
// time; an invalid transport or theme source is a config error fatal to
// initialization, consistent with the rule that configuration problems
// never surface mid-session.
package config
