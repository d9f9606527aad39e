// Package metrics records HTTP round trips and run outcomes of the CLIs in a
// private Prometheus registry that can be dumped in the node_exporter textfile
// format, which is how cron driven invocations get scraped.
package metrics
