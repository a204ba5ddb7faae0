package ads

import "regexp"

// ConversionTimeLayout is the wire format for conversion timestamps:
// "2025-03-01 14:05:00+00:00".
const ConversionTimeLayout = "2006-01-02 15:04:05-07:00"

// conversionActionPattern matches a fully-qualified conversion action
// resource name.
var conversionActionPattern = regexp.MustCompile(`^accounts/\d+/conversionActions/[\w-]+$`)

// ValidConversionAction reports whether s is a well-formed fully-qualified
// conversion action resource name.
func ValidConversionAction(s string) bool {
	return conversionActionPattern.MatchString(s)
}

// Consent carries the per-conversion privacy signals. Only set values are
// sent; "unknown" is expressed by omission.
type Consent struct {
	AdUserData        string `json:"adUserData,omitempty"`        // GRANTED | DENIED
	AdPersonalization string `json:"adPersonalization,omitempty"` // GRANTED | DENIED
}

// HashedAddress is the address block of a hashed-identity identifier.
// Every field except CountryCode holds a SHA-256 hex digest; CountryCode
// is sent upper-cased in the clear (two-letter codes carry no PII).
type HashedAddress struct {
	HashedFirstName     string `json:"hashedFirstName,omitempty"`
	HashedLastName      string `json:"hashedLastName,omitempty"`
	HashedStreetAddress string `json:"hashedStreetAddress,omitempty"`
	HashedCity          string `json:"hashedCity,omitempty"`
	HashedPostalCode    string `json:"hashedPostalCode,omitempty"`
	CountryCode         string `json:"countryCode,omitempty"`
}

// Empty reports whether no component of the address block is set.
func (a HashedAddress) Empty() bool {
	return a == (HashedAddress{})
}

// UserIdentifier is one hashed identifier entry. Exactly one field is set
// per entry.
type UserIdentifier struct {
	HashedEmail       string         `json:"hashedEmail,omitempty"`
	HashedPhoneNumber string         `json:"hashedPhoneNumber,omitempty"`
	AddressInfo       *HashedAddress `json:"addressInfo,omitempty"`
}

// ConversionRecord is the canonical upload unit. Exactly one of the
// identity fields (ClickID, AppInstallID, WebToAppID, UserIdentifiers)
// must be populated; Validate enforces this.
type ConversionRecord struct {
	ConversionAction   string           `json:"conversionAction"`
	ConversionDateTime string           `json:"conversionDateTime"`
	ConversionValue    float64          `json:"conversionValue,omitempty"`
	CurrencyCode       string           `json:"currencyCode,omitempty"`
	OrderID            string           `json:"orderId,omitempty"`
	Consent            *Consent         `json:"consent,omitempty"`
	ClickID            string           `json:"clickId,omitempty"`
	AppInstallID       string           `json:"appInstallId,omitempty"`
	WebToAppID         string           `json:"webToAppId,omitempty"`
	UserIdentifiers    []UserIdentifier `json:"userIdentifiers,omitempty"`
}

// identityCount returns how many identity variants are populated.
func (r *ConversionRecord) identityCount() int {
	n := 0
	if r.ClickID != "" {
		n++
	}
	if r.AppInstallID != "" {
		n++
	}
	if r.WebToAppID != "" {
		n++
	}
	if len(r.UserIdentifiers) > 0 {
		n++
	}
	return n
}

// Validate checks the record invariants before upload.
func (r *ConversionRecord) Validate() error {
	if !ValidConversionAction(r.ConversionAction) {
		return Validationf("conversion action %q is not a valid resource name (want accounts/{account}/conversionActions/{id})", r.ConversionAction)
	}
	if r.ConversionDateTime == "" {
		return Validationf("conversion timestamp is required")
	}
	switch n := r.identityCount(); {
	case n == 0:
		return Validationf("conversion has no user identity; set exactly one of click id, app install id, web-to-app id, or hashed identifiers")
	case n > 1:
		return Validationf("conversion has %d identity variants populated; exactly one is allowed", n)
	}
	return nil
}

// PartialFailurePolicyContinue asks the platform to accept valid entries
// in a batch even when others are rejected. Absent, the batch is atomic.
const PartialFailurePolicyContinue = "CONTINUE"

// UploadRequest is the body of POST /accounts/{id}:uploadConversions.
type UploadRequest struct {
	Conversions          []ConversionRecord `json:"conversions"`
	PartialFailurePolicy string             `json:"partialFailurePolicy,omitempty"`
	ValidateOnly         bool               `json:"validateOnly"`
}

// UploadResponse is the upload endpoint response. When the request ran
// with the partial-failure policy, per-entry rejections arrive in
// PartialFailureError while the response itself is a 2xx.
type UploadResponse struct {
	Results             []ConversionResult   `json:"results"`
	PartialFailureError *PartialFailureError `json:"partialFailureError,omitempty"`
}

// ConversionResult echoes an accepted conversion.
type ConversionResult struct {
	ConversionAction   string `json:"conversionAction,omitempty"`
	ConversionDateTime string `json:"conversionDateTime,omitempty"`
	OrderID            string `json:"orderId,omitempty"`
}

// PartialFailureError carries per-entry rejections for a batch.
type PartialFailureError struct {
	Code    int                    `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details []PartialFailureDetail `json:"details,omitempty"`
}

// PartialFailureDetail groups entry errors.
type PartialFailureDetail struct {
	Errors []EntryError `json:"errors,omitempty"`
}

// EntryError is one rejected entry. Location's first indexed field path
// element identifies the batch position of the offending conversion.
type EntryError struct {
	Message  string         `json:"message,omitempty"`
	Location *ErrorLocation `json:"location,omitempty"`
}

// ErrorLocation points at the offending request field.
type ErrorLocation struct {
	FieldPathElements []FieldPathElement `json:"fieldPathElements,omitempty"`
}

// FieldPathElement is one step of a field path. Index is a pointer so
// position 0 is distinguishable from "no index".
type FieldPathElement struct {
	FieldName string `json:"fieldName,omitempty"`
	Index     *int   `json:"index,omitempty"`
}

// FailedPositions maps batch-local positions to their rejection messages.
// Nil-safe: a nil receiver returns an empty map.
func (p *PartialFailureError) FailedPositions() map[int]string {
	failed := make(map[int]string)
	if p == nil {
		return failed
	}
	for _, d := range p.Details {
		for _, e := range d.Errors {
			if e.Location == nil {
				continue
			}
			for _, fp := range e.Location.FieldPathElements {
				if fp.Index == nil {
					continue
				}
				pos := *fp.Index
				if prev, ok := failed[pos]; ok {
					failed[pos] = prev + "; " + e.Message
				} else {
					failed[pos] = e.Message
				}
				break
			}
		}
	}
	return failed
}

// SearchRequest is the body of POST /accounts/{id}/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse wraps typed search rows.
type SearchResponse struct {
	Results []SearchRow `json:"results"`
}

// SearchRow is one search result; exactly one field is set depending on
// the queried entity.
type SearchRow struct {
	Account          *AccountRow          `json:"account,omitempty"`
	ConversionAction *ConversionActionRow `json:"conversionAction,omitempty"`
}

// AccountRow describes an account selectable as an upload target.
type AccountRow struct {
	ID      string `json:"id"`
	Name    string `json:"descriptiveName,omitempty"`
	Manager bool   `json:"manager,omitempty"`
}

// ConversionActionRow describes a conversion action resource.
type ConversionActionRow struct {
	ResourceName string `json:"resourceName"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
}
