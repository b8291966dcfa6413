// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	BILLING_HOST="0.0.0.0"
//	BILLING_PORT="8080"
//	BILLING_HEALTH_PORT="9090"
//	BILLING_READ_TIMEOUT="15s"
//	BILLING_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	BILLING_POSTGRES_URL="postgres://localhost/billing"
//	BILLING_POSTGRES_REPLICA_URLS="postgres://replica1/billing,postgres://replica2/billing"
//	BILLING_POSTGRES_MAX_CONNS="25"
//	BILLING_POSTGRES_AUTO_MIGRATE="true"
//
// Redis settings (Redis is optional; it backs webhook event dedup):
//
//	BILLING_REDIS_URL="redis://localhost:6379"
//	BILLING_REDIS_POOL_SIZE="10"
//
// Gateway settings:
//
//	BILLING_RAZORPAY_KEY_ID="rzp_test_xxxx"
//	BILLING_RAZORPAY_KEY_SECRET="..."
//	BILLING_RAZORPAY_WEBHOOK_SECRET="..."
//
// Billing settings:
//
//	BILLING_CURRENCY="INR"
//	BILLING_TAX_RATE_PERCENT="18"
//	BILLING_PROFORMA_VALIDITY_DAYS="15"
//	BILLING_INVOICE_DUE_DAYS="30"
//
// Scheduler settings (standard cron expressions):
//
//	BILLING_OVERDUE_SWEEP_SCHEDULE="15 1 * * *"
//	BILLING_PROFORMA_EXPIRY_SCHEDULE="30 1 * * *"
//	BILLING_REMINDER_SCHEDULE="0 9 * * *"
//	BILLING_SNAPSHOT_SCHEDULE="0 2 1 * *"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
