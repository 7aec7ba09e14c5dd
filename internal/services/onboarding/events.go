package onboarding

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/revaspay/onboarding/internal/models"
	"github.com/shopspring/decimal"
)

// EventKind is the vendor webhook family an event was delivered on
type EventKind string

const (
	EventKindLiveness EventKind = "liveness"
	EventKindKYC      EventKind = "kyc"
	EventKindKYB      EventKind = "kyb"
	EventKindCOD      EventKind = "cod"
)

// Channel groups event kinds by the part of the flow they report on
type Channel string

const (
	// ChannelIdentity covers the liveness and corporate document flows
	ChannelIdentity Channel = "identity"
	// ChannelScreening covers AML screening of people and businesses
	ChannelScreening Channel = "screening"
)

// ParseEventKind validates a webhook kind path segment
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EventKindLiveness, EventKindKYC, EventKindKYB, EventKindCOD:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown event kind %q", ErrInvalidInput, s)
}

// Channel returns the channel the kind reports on
func (k EventKind) Channel() Channel {
	if k == EventKindKYC || k == EventKindKYB {
		return ChannelScreening
	}
	return ChannelIdentity
}

// subEntityPrefix marks ids issued for directors and shareholders
const subEntityPrefix = "EOD"

// IsSubEntityID reports whether id belongs to a corporate sub-entity flow
func IsSubEntityID(id string) bool {
	return strings.HasPrefix(strings.ToUpper(id), subEntityPrefix)
}

// Event is a normalized vendor notification, from a webhook or a status poll
type Event struct {
	Kind   EventKind
	Source models.PayloadSource

	// RequestID is the id of the check that produced the event. For
	// screening events this is the verification id (e.g. KYC12345).
	RequestID string
	// OnboardingID is the flow the check belongs to; an EOD id for
	// sub-entity screening.
	OnboardingID string
	ReferenceID  string

	Status        string
	Substatus     string
	RiskScore     *decimal.Decimal
	RiskLevel     string
	MessageStatus string

	Raw json.RawMessage
}

// ParseEvent extracts the fields the pipeline needs from a raw webhook body.
// The body is kept verbatim in Raw; unknown fields are ignored.
func ParseEvent(kind EventKind, body []byte) (*Event, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid webhook payload: %v", ErrInvalidInput, err)
	}

	ev := &Event{
		Kind:          kind,
		Source:        models.PayloadSourceWebhook,
		RequestID:     stringField(data, "requestId"),
		OnboardingID:  stringField(data, "onboardingId"),
		ReferenceID:   stringField(data, "referenceId"),
		Status:        stringField(data, "status"),
		Substatus:     stringField(data, "substatus"),
		RiskLevel:     stringField(data, "riskLevel"),
		MessageStatus: stringField(data, "messageStatus"),
		Raw:           json.RawMessage(body),
	}
	if ev.Status == "" {
		ev.Status = stringField(data, "kycStatus")
	}
	if score, ok := decimalField(data, "riskScore"); ok {
		ev.RiskScore = &score
	}

	if ev.RequestID == "" && ev.OnboardingID == "" && ev.ReferenceID == "" {
		return nil, fmt.Errorf("%w: webhook payload carries no identifier", ErrInvalidInput)
	}
	return ev, nil
}

// subEntityArrays are the parent payload fields that list sub-entity flows
var subEntityArrays = []struct {
	field string
	kind  models.EntityKind
}{
	{"directors", models.EntityKindDirector},
	{"individualShareholders", models.EntityKindIndividualShareholder},
	{"businessShareholders", models.EntityKindBusinessShareholder},
}

// SubEntityRef is one sub-entity listed in a corporate parent payload
type SubEntityRef struct {
	Kind         models.EntityKind
	RequestID    string
	Name         string
	Email        string
	BusinessName string
}

// SubEntityRefs extracts the sub-entities listed in a corporate payload.
// Elements may be bare id strings or objects.
func SubEntityRefs(raw []byte) []SubEntityRef {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}

	var refs []SubEntityRef
	for _, arr := range subEntityArrays {
		kind := arr.kind
		items, ok := data[arr.field].([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			switch v := item.(type) {
			case string:
				if v != "" {
					refs = append(refs, SubEntityRef{Kind: kind, RequestID: v})
				}
			case map[string]interface{}:
				ref := SubEntityRef{
					Kind:         kind,
					RequestID:    firstString(v, "requestId", "onboardingId", "eodRequestId"),
					Name:         firstString(v, "name", "fullName"),
					Email:        stringField(v, "email"),
					BusinessName: stringField(v, "businessName"),
				}
				if ref.RequestID != "" {
					refs = append(refs, ref)
				}
			}
		}
	}
	return refs
}

// ListsSubEntity reports whether a corporate payload lists the sub-entity id
func ListsSubEntity(raw []byte, subEntityID string) bool {
	if subEntityID == "" || !strings.Contains(string(raw), subEntityID) {
		return false
	}
	for _, ref := range SubEntityRefs(raw) {
		if ref.RequestID == subEntityID {
			return true
		}
	}
	return false
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringField(data, key); s != "" {
			return s
		}
	}
	return ""
}

func decimalField(data map[string]interface{}, key string) (decimal.Decimal, bool) {
	switch v := data[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}
