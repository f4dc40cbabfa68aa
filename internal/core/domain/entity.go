package domain

// EntityKind classifies a detected PII span. The set is closed: matchers,
// tokens and reports all operate over exactly these seven kinds.
type EntityKind string

const (
	KindEmail    EntityKind = "EMAIL"
	KindPhone    EntityKind = "PHONE"
	KindID       EntityKind = "ID"
	KindDate     EntityKind = "DATE"
	KindName     EntityKind = "NAME"
	KindOrg      EntityKind = "ORG"
	KindLocation EntityKind = "LOCATION"
)

// AllEntityKinds returns the closed kind set in overlap-priority order,
// most specific first.
func AllEntityKinds() []EntityKind {
	return []EntityKind{
		KindEmail,
		KindID,
		KindPhone,
		KindDate,
		KindName,
		KindOrg,
		KindLocation,
	}
}

// Priority orders kinds for overlap resolution; lower wins.
func (k EntityKind) Priority() int {
	switch k {
	case KindEmail:
		return 0
	case KindID:
		return 1
	case KindPhone:
		return 2
	case KindDate:
		return 3
	case KindName:
		return 4
	case KindOrg:
		return 5
	case KindLocation:
		return 6
	default:
		return 7
	}
}

func (k EntityKind) Valid() bool {
	return k.Priority() < 7
}

// DetectedSpan is a candidate PII occurrence inside a text buffer.
// Offsets are byte offsets; End is exclusive.
type DetectedSpan struct {
	Start int
	End   int
	Kind  EntityKind
	Value string
}
