// Package cmd implements the cobra command trees of amctl (alerts and
// silences on Alertmanager) and alertingctl (alerting configuration on the
// MY backend) on top of a shared runtime state.
package cmd
