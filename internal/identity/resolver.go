package identity

import (
	"strings"

	"github.com/ignite/conversion-relay/internal/ads"
)

// Identification methods accepted by Resolve.
const (
	MethodClickID    = "click-id"
	MethodAppInstall = "app-install-id"
	MethodWebToApp   = "web-to-app-id"
	MethodHashed     = "hashed-identity"
)

// Identity is the sealed union of identification variants. The payload
// builder type-switches over it; exactly one variant exists per record.
type Identity interface {
	isIdentity()
}

// ClickID attributes the conversion to an ad click.
type ClickID struct{ Value string }

// AppInstallID attributes the conversion to an app install campaign.
type AppInstallID struct{ Value string }

// WebToAppID attributes a web conversion completed in-app.
type WebToAppID struct{ Value string }

// Hashed carries wire-ready hashed user identifiers for PII matching.
type Hashed struct {
	Identifiers []ads.UserIdentifier
}

func (ClickID) isIdentity()      {}
func (AppInstallID) isIdentity() {}
func (WebToAppID) isIdentity()   {}
func (Hashed) isIdentity()       {}

// RawIdentity holds the unprocessed identification fields of one input
// item. Which fields matter depends on the selected method.
type RawIdentity struct {
	ClickID      string
	AppInstallID string
	WebToAppID   string

	Email         string
	Phone         string
	FirstName     string
	LastName      string
	StreetAddress string
	City          string
	PostalCode    string
	CountryCode   string
}

// Resolve assembles the identity variant for the given method.
// Returns a ValidationError when the method's required field is empty,
// when hashed identity has no usable sub-identifier, or when the method
// is not recognized.
func Resolve(method string, raw RawIdentity) (Identity, error) {
	switch method {
	case MethodClickID:
		if strings.TrimSpace(raw.ClickID) == "" {
			return nil, ads.Validationf("identification method %q requires a click id", method)
		}
		return ClickID{Value: strings.TrimSpace(raw.ClickID)}, nil

	case MethodAppInstall:
		if strings.TrimSpace(raw.AppInstallID) == "" {
			return nil, ads.Validationf("identification method %q requires an app install id", method)
		}
		return AppInstallID{Value: strings.TrimSpace(raw.AppInstallID)}, nil

	case MethodWebToApp:
		if strings.TrimSpace(raw.WebToAppID) == "" {
			return nil, ads.Validationf("identification method %q requires a web-to-app id", method)
		}
		return WebToAppID{Value: strings.TrimSpace(raw.WebToAppID)}, nil

	case MethodHashed:
		return resolveHashed(raw)

	default:
		return nil, ads.Validationf("unknown identification method %q (want one of %s, %s, %s, %s)",
			method, MethodClickID, MethodAppInstall, MethodWebToApp, MethodHashed)
	}
}

// resolveHashed builds up to three identifier entries: hashed email,
// hashed phone, and an address block. The address block is emitted only
// when at least one component is present, and only non-empty components
// are included.
func resolveHashed(raw RawIdentity) (Identity, error) {
	if allBlank(raw.Email, raw.Phone, raw.FirstName, raw.LastName, raw.StreetAddress) {
		return nil, ads.Validationf("hashed identity requires at least one of email, phone, first name, last name, or street address")
	}

	var identifiers []ads.UserIdentifier

	if h := NormalizeAndHash(raw.Email); h != "" {
		identifiers = append(identifiers, ads.UserIdentifier{HashedEmail: h})
	}
	if h := NormalizeAndHash(raw.Phone); h != "" {
		identifiers = append(identifiers, ads.UserIdentifier{HashedPhoneNumber: h})
	}

	addr := ads.HashedAddress{
		HashedFirstName:     NormalizeAndHash(raw.FirstName),
		HashedLastName:      NormalizeAndHash(raw.LastName),
		HashedStreetAddress: NormalizeAndHash(raw.StreetAddress),
		HashedCity:          NormalizeAndHash(raw.City),
		HashedPostalCode:    NormalizeAndHash(raw.PostalCode),
		CountryCode:         strings.ToUpper(strings.TrimSpace(raw.CountryCode)),
	}
	if !addr.Empty() {
		identifiers = append(identifiers, ads.UserIdentifier{AddressInfo: &addr})
	}

	return Hashed{Identifiers: identifiers}, nil
}

func allBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
