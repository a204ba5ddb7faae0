// Package payload assembles normalized conversion records from raw
// input items: resource resolution, timestamp normalization, optional
// value/currency/order/consent fields, and the identity merge.
package payload

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/identity"
	"github.com/ignite/conversion-relay/internal/pkg/logger"
)

// DefaultCurrency is applied when a conversion carries a value but no
// currency code.
const DefaultCurrency = "USD"

// RawConversion is one input item as delivered by the caller, before
// validation or normalization.
type RawConversion struct {
	ConversionAction string
	Timestamp        interface{}
	Value            float64
	Currency         string
	OrderID          string

	// Consent signals; "GRANTED"/"DENIED" (any case) are applied,
	// anything else counts as unknown and is omitted.
	AdUserData        string
	AdPersonalization string

	Method   string
	Identity identity.RawIdentity
}

// AccountContext identifies the upload target account.
type AccountContext struct {
	// AccountID is the authenticated account's own identifier.
	AccountID string
	// ManagedAccountID is the explicitly selected sub-account when
	// operating through a manager account.
	ManagedAccountID string
	UseManagedAccount bool
}

var nonDigits = regexp.MustCompile(`\D`)
var actionIDInvalid = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Resolve returns the sanitized digits-only target account identifier.
// Managed mode without a selection is an AuthenticationError; an
// identifier with no digits at all is an ApiError.
func (a AccountContext) Resolve() (string, error) {
	raw := a.AccountID
	if a.UseManagedAccount {
		raw = a.ManagedAccountID
		if strings.TrimSpace(raw) == "" {
			return "", ads.Authenticationf("managed account mode is enabled but no sub-account is selected")
		}
	}

	id := nonDigits.ReplaceAllString(raw, "")
	if id == "" {
		return "", ads.APIErrorf(0, "INVALID_ACCOUNT", "account identifier %q contains no digits", raw)
	}
	if len(id) < 8 || len(id) > 12 {
		// Diagnostic heuristic only; the platform does not guarantee lengths.
		logger.Warn("account identifier length outside the usual 8-12 digits", "account", id, "length", fmt.Sprintf("%d", len(id)))
	}
	return id, nil
}

// Builder constructs conversion records. The clock is injectable so
// tests can pin "now".
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderAt returns a Builder with a fixed clock for tests.
func NewBuilderAt(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// Build assembles and validates one conversion record. All failures are
// typed: ValidationError for bad input, AuthenticationError/ApiError for
// account resolution problems.
func (b *Builder) Build(item RawConversion, acct AccountContext) (*ads.ConversionRecord, error) {
	accountID, err := acct.Resolve()
	if err != nil {
		return nil, err
	}

	action, err := resolveConversionAction(item.ConversionAction, accountID)
	if err != nil {
		return nil, err
	}

	now := b.now()
	ts, ok := ParseConversionTime(item.Timestamp)
	if !ok {
		// Tolerated: unparseable timestamps fall back to "now" rather
		// than failing the item. Future parseable times are still hard
		// errors below.
		logger.Warn("conversion timestamp unparseable, substituting current time", "raw", fmt.Sprintf("%v", item.Timestamp))
		ts = now
	}
	if ts.After(now) {
		return nil, ads.Validationf("conversion time %s is in the future; the platform rejects future conversions", ts.Format(ads.ConversionTimeLayout))
	}

	record := &ads.ConversionRecord{
		ConversionAction:   action,
		ConversionDateTime: ts.Format(ads.ConversionTimeLayout),
		OrderID:            strings.TrimSpace(item.OrderID),
	}

	if item.Value > 0 {
		record.ConversionValue = item.Value
		record.CurrencyCode = item.Currency
		if record.CurrencyCode == "" {
			record.CurrencyCode = DefaultCurrency
		}
	}

	if consent := buildConsent(item.AdUserData, item.AdPersonalization); consent != nil {
		record.Consent = consent
	}

	id, err := identity.Resolve(item.Method, item.Identity)
	if err != nil {
		return nil, err
	}
	applyIdentity(record, id)

	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// applyIdentity copies the resolved identity variant onto the record's
// wire fields. The union is closed, so the switch is exhaustive.
func applyIdentity(record *ads.ConversionRecord, id identity.Identity) {
	switch v := id.(type) {
	case identity.ClickID:
		record.ClickID = v.Value
	case identity.AppInstallID:
		record.AppInstallID = v.Value
	case identity.WebToAppID:
		record.WebToAppID = v.Value
	case identity.Hashed:
		record.UserIdentifiers = v.Identifiers
	}
}

// resolveConversionAction returns the fully-qualified conversion action
// resource name. Pre-qualified values are validated and used as-is;
// anything else is sanitized and joined with the account.
func resolveConversionAction(raw, accountID string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ads.Validationf("conversion action is required")
	}

	if strings.HasPrefix(raw, "accounts/") {
		if !ads.ValidConversionAction(raw) {
			return "", ads.Validationf("conversion action %q is not a valid resource name", raw)
		}
		return raw, nil
	}

	cleaned := actionIDInvalid.ReplaceAllString(raw, "")
	if cleaned == "" {
		return "", ads.Validationf("conversion action %q contains no usable characters after sanitization", raw)
	}
	return fmt.Sprintf("accounts/%s/conversionActions/%s", accountID, cleaned), nil
}

// buildConsent returns a consent block only when at least one signal is
// explicitly granted or denied; unknown signals are omitted entirely.
func buildConsent(adUserData, adPersonalization string) *ads.Consent {
	consent := &ads.Consent{
		AdUserData:        normalizeConsent(adUserData),
		AdPersonalization: normalizeConsent(adPersonalization),
	}
	if consent.AdUserData == "" && consent.AdPersonalization == "" {
		return nil
	}
	return consent
}

func normalizeConsent(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "GRANTED":
		return "GRANTED"
	case "DENIED":
		return "DENIED"
	default:
		return ""
	}
}
