package constants

// Route constants shared by the router and the callback URL builder
const (
	USSDRoute              = "/ussd"
	PaymentWebhookRoute    = "/webhooks/payment"
	HealthRoute            = "/health"
	MetricsRoute           = "/metrics"
	PrometheusMetricsRoute = "/metrics/prometheus"
	DocsBasePath           = "/docs/api/"
	DocsVersion            = "v1"
)
