// Package testutil provides an in-memory sqlite schema mirroring the
// postgres migrations, plus seed helpers for service tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE schools (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		subscription_status TEXT NOT NULL DEFAULT 'trial',
		subscription_plan TEXT,
		billing_day INTEGER,
		trial_ends_at TIMESTAMP,
		current_period_end TIMESTAMP,
		stripe_customer_id TEXT,
		stripe_subscription_id TEXT,
		stripe_connected_account_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_schools_stripe_customer ON schools (stripe_customer_id) WHERE stripe_customer_id IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_schools_stripe_subscription ON schools (stripe_subscription_id) WHERE stripe_subscription_id IS NOT NULL`,
	`CREATE TABLE school_members (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		role TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (school_id, user_id)
	)`,
	`CREATE TABLE platform_admins (
		user_id BIGINT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE features (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		default_monthly_price BIGINT NOT NULL DEFAULT 0,
		default_one_time_price BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE feature_subscriptions (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		feature_code TEXT NOT NULL,
		is_enabled BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		pricing_model TEXT NOT NULL,
		monthly_fee BIGINT,
		one_time_fee BIGINT,
		post_trial_monthly_fee BIGINT,
		trial_end_date TIMESTAMP,
		next_billing_date TIMESTAMP,
		enabled_at TIMESTAMP,
		enabled_by BIGINT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (school_id, feature_code),
		CHECK (status <> 'trial' OR trial_end_date IS NOT NULL)
	)`,
	`CREATE TABLE custom_charges (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		family_id BIGINT NOT NULL,
		description TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'usd',
		status TEXT NOT NULL DEFAULT 'unpaid',
		paid_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE platform_payments (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		target_type TEXT NOT NULL,
		feature_code TEXT,
		custom_charge_id BIGINT,
		plan_code TEXT,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'usd',
		status TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		paid_at TIMESTAMP,
		period_start TIMESTAMP,
		period_end TIMESTAMP,
		provider_payment_id TEXT,
		recorded_by BIGINT,
		note TEXT,
		applied_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_platform_payments_provider_payment ON platform_payments (provider_payment_id) WHERE provider_payment_id IS NOT NULL`,
	`CREATE TABLE payment_webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE notifications (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		contact_id BIGINT NOT NULL,
		notification_type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		notified_on TEXT NOT NULL,
		dedup_key TEXT,
		read_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_notifications_dedup ON notifications (dedup_key) WHERE dedup_key IS NOT NULL`,
}

// NewDB opens an isolated in-memory database with the billing schema applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// NewNode returns a snowflake node for test ids.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SchoolSeed describes a tenant row inserted by SeedSchool.
type SchoolSeed struct {
	Name        string
	Status      string
	Plan        *string
	BillingDay  *int
	TrialEndsAt *time.Time
}

func SeedSchool(t testing.TB, db *gorm.DB, node *snowflake.Node, seed SchoolSeed) snowflake.ID {
	t.Helper()
	if seed.Name == "" {
		seed.Name = "Test School"
	}
	if seed.Status == "" {
		seed.Status = "trial"
	}
	id := node.Generate()
	now := time.Now().UTC().Truncate(time.Second)
	err := db.WithContext(context.Background()).Exec(
		`INSERT INTO schools (id, name, subscription_status, subscription_plan, billing_day, trial_ends_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seed.Name, seed.Status, seed.Plan, seed.BillingDay, seed.TrialEndsAt, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed school: %v", err)
	}
	return id
}

func SeedMember(t testing.TB, db *gorm.DB, node *snowflake.Node, schoolID snowflake.ID, userID int64, role, email string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO school_members (id, school_id, user_id, role, email, name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, schoolID, userID, role, email, strings.Split(email, "@")[0], time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return id
}

func SeedPlatformAdmin(t testing.TB, db *gorm.DB, userID int64) {
	t.Helper()
	if err := db.Exec(`INSERT INTO platform_admins (user_id, created_at) VALUES (?, ?)`, userID, time.Now().UTC()).Error; err != nil {
		t.Fatalf("seed platform admin: %v", err)
	}
}

func SeedFeature(t testing.TB, db *gorm.DB, code string, monthly, oneTime int64) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO features (code, name, description, default_monthly_price, default_one_time_price, is_active, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?, ?, ?, ?)`,
		code, strings.ReplaceAll(code, "_", " "), monthly, oneTime, true, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed feature: %v", err)
	}
}

func SeedCustomCharge(t testing.TB, db *gorm.DB, node *snowflake.Node, schoolID, familyID snowflake.ID, amount int64) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO custom_charges (id, school_id, family_id, description, amount, currency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'usd', 'unpaid', ?, ?)`,
		id, schoolID, familyID, "Field trip", amount, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed custom charge: %v", err)
	}
	return id
}

// Count runs a COUNT(*) query and fails the test on error.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
