package portrait

import "encoding/json"

// Kinship is the closed set of family roles the graph models.
type Kinship uint8

const (
	KinshipUnknown Kinship = iota
	KinshipSpouse
	KinshipChild
	KinshipParent
)

// Source relationship codes. Code 4 covers both biological parents and
// parents-in-law; the source vocabulary does not separate them.
var kinshipCodes = map[string]Kinship{
	"1": KinshipSpouse,
	"2": KinshipChild,
	"4": KinshipParent,
}

func ParseKinship(code string) Kinship {
	return kinshipCodes[code]
}

func (k Kinship) String() string {
	switch k {
	case KinshipSpouse:
		return "SPOUSE"
	case KinshipChild:
		return "CHILD"
	case KinshipParent:
		return "PARENT"
	default:
		return "UNKNOWN"
	}
}

// Relationship keeps the raw source code next to the decoded kinship so
// rejected codes can still be reported.
type Relationship struct {
	Code    string
	Kinship Kinship
}

func (r *Relationship) UnmarshalJSON(b []byte) error {
	var code FlexString
	if err := json.Unmarshal(b, &code); err != nil {
		return err
	}
	r.Code = code.String()
	r.Kinship = ParseKinship(r.Code)
	return nil
}

func (r Relationship) Known() bool { return r.Kinship != KinshipUnknown }
