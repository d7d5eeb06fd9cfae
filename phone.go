package identity

import (
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers given without a country
// prefix. Override per deployment through the register payload region.
var DefaultPhoneRegion = "KE"

// NormalizePhone parses a phone number and returns it in E.164 form.
// Empty input stays empty; the field is optional on a profile.
func NormalizePhone(phone, region string) (string, error) {
	if phone == "" {
		return "", nil
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "invalid phone number").
			WithCode(errors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", errors.New("invalid phone number", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
