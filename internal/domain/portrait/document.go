// Package portrait is the typed form of the per-subject health portrait
// document returned by the provider. Every field is optional; mappers
// decide which absences matter.
package portrait

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Document struct {
	PatientID     FlexString `json:"patientId"`
	IDType        FlexString `json:"idType"`
	IDValue       FlexString `json:"idValue"`
	Name          FlexString `json:"name"`
	EMPI          FlexString `json:"empi"`
	BirthDate     FlexString `json:"birthDate"`
	Gender        FlexString `json:"gender"`
	MaritalStatus FlexString `json:"maritalStatus"`
	CreatedAt     FlexString `json:"createdAt"`
	UpdateTime    FlexString `json:"updateTime"`

	Encounters []Encounter `json:"encounters"`

	// Lab and exam rows not attached to a visit.
	LabRows  []LabRow  `json:"jyList"`
	ExamRows []ExamRow `json:"jcList"`

	Allergies     []Allergy       `json:"allergyProfilesList"`
	FamilyHistory []FamilyHistory `json:"familyHistoryList"`
	Surgeries     []Surgery       `json:"pastSurgeriesList"`
	Traumas       []Trauma        `json:"pastTraumasList"`
	Transfusions  []Transfusion   `json:"pastBloodTransfusionsList"`
	Vaccinations  []Vaccination   `json:"pastVaccinationsList"`

	Smoking        []SmokingRecord   `json:"personalSmokingHistoryList"`
	Alcohol        []AlcoholRecord   `json:"personalAlcoholHistoryList"`
	PhysicalTraits []PhysicalTraits  `json:"physicalTraitsList"`
	DietHabits     []DietHabit       `json:"dietHabitsList"`
	Sleep          []SleepAssessment `json:"sleepAssessmentList"`

	FamilyMembers []FamilyMember `json:"familyMembers"`
}

type Encounter struct {
	EncounterID           FlexString    `json:"encounterId"`
	EncounterType         FlexString    `json:"encounterType"`
	VisitStartTime        FlexString    `json:"visitStartTime"`
	VisitEndTime          FlexString    `json:"visitEndTime"`
	HospitalID            FlexString    `json:"hospitalId"`
	HospitalName          FlexString    `json:"hospitalName"`
	DepartmentID          FlexString    `json:"departmentId"`
	DepartmentName        FlexString    `json:"departmentName"`
	AttendingProviderID   FlexString    `json:"attendingProviderId"`
	AttendingProviderName FlexString    `json:"attendingProviderName"`
	Diagnoses             []Diagnosis   `json:"diagnoses"`
	Examinations          []Examination `json:"examinations"`
	LabTests              []LabTest     `json:"labTests"`
}

type Diagnosis struct {
	Name FlexString `json:"diagnosisName"`
	Code FlexString `json:"diagnosisNo"`
}

type Examination struct {
	ReportID   FlexString `json:"reportId"`
	Timestamp  FlexString `json:"timestamp"`
	FullReport FlexString `json:"fullReport"`
	Findings   []Finding  `json:"findings"`
}

type Finding struct {
	Result      FlexString `json:"diagnosisResult"`
	Code        FlexString `json:"diagnosisCode"`
	BodyPart    FlexString `json:"bodyPart"`
	DiagnosisID FlexString `json:"diagnosisId"`
}

type LabTest struct {
	ReportID FlexString `json:"reportId"`
	Items    []LabItem  `json:"items"`
}

type LabItem struct {
	Name           FlexString `json:"labtestIndexName"`
	Code           FlexString `json:"labtestIndexCode"`
	TestID         FlexString `json:"testId"`
	Value          FlexString `json:"value"`
	TextValue      FlexString `json:"textValue"`
	Unit           FlexString `json:"unit"`
	ReferenceRange FlexString `json:"referenceRange"`
	Interpretation FlexString `json:"interpretation"`
	Timestamp      FlexString `json:"timestamp"`
}

// LabRow is one result line from the unattached lab list.
type LabRow struct {
	ReportTime     FlexString `json:"bgfbsj"`
	Code           FlexString `json:"jyxmdm"`
	Name           FlexString `json:"jyxmmc"`
	Value          FlexString `json:"jyjg"`
	Unit           FlexString `json:"jyjgdw"`
	ReferenceRange FlexString `json:"jyzcfw"`
}

// ExamRow is one report from the unattached examination list.
type ExamRow struct {
	ReportTime  FlexString `json:"bgfbsj"`
	Name        FlexString `json:"jcxmmc"`
	BodyPart    FlexString `json:"jcbw"`
	Findings    FlexString `json:"jcjg"`
	Description FlexString `json:"jcsj"`
}

type Allergy struct {
	Allergen     FlexString `json:"allergen"`
	AllergyID    FlexString `json:"allergyId"`
	AllergenType FlexString `json:"allergenType"`
	Reaction     FlexString `json:"reaction"`
	ReactionType FlexString `json:"reactionType"`
	RecordedAt   FlexString `json:"recordedAt"`
}

type FamilyHistory struct {
	Disease    FlexString `json:"relativeDisease"`
	Relative   FlexString `json:"relativeRelationship"`
	OnsetAge   FlexString `json:"onsetAge"`
	RecordedAt FlexString `json:"recordedAt"`
}

type Surgery struct {
	Name     FlexString `json:"surgeryName"`
	Date     FlexString `json:"surgeryDate"`
	BodySite FlexString `json:"bodySite"`
	Code     FlexString `json:"surgeryCode"`
}

type Trauma struct {
	BodySite FlexString `json:"bodySite"`
	Type     FlexString `json:"traumaType"`
	Date     FlexString `json:"traumasDate"`
	Severity FlexString `json:"severity"`
	Healed   FlexString `json:"healed"`
	ID       FlexString `json:"pastTraumasId"`
}

type Transfusion struct {
	Date     FlexString `json:"bloodTransfusionsDate"`
	VolumeML FlexString `json:"volumeMl"`
	Address  FlexString `json:"bloodTransfusionsAddress"`
	ID       FlexString `json:"pastBloodTransfusionsId"`
}

type Vaccination struct {
	Name         FlexString `json:"vaccineName"`
	Date         FlexString `json:"vaccineDate"`
	DoseNumber   FlexString `json:"doseNumber"`
	Manufacturer FlexString `json:"manufacturer"`
	LotNumber    FlexString `json:"lotNumber"`
	Code         FlexString `json:"vaccineCode"`
}

type SmokingRecord struct {
	Status    FlexString `json:"status"`
	CreatedAt FlexString `json:"createdAt"`
}

type AlcoholRecord struct {
	Frequency FlexString `json:"frequency"`
	CreatedAt FlexString `json:"createdAt"`
}

type PhysicalTraits struct {
	BMI       FlexString `json:"bmi"`
	CreatedAt FlexString `json:"createdAt"`
}

type DietHabit struct {
	DietType   FlexString `json:"dietType"`
	FlavorType FlexString `json:"flavorType"`
	CreatedAt  FlexString `json:"createdAt"`
}

type SleepAssessment struct {
	Duration  FlexString `json:"sleepDuration"`
	Quality   FlexString `json:"sleepQuality"`
	CreatedAt FlexString `json:"createdAt"`
}

type FamilyMember struct {
	Relationship     Relationship `json:"relationship"`
	RelationshipName FlexString   `json:"relationshipName"`
	IDType           FlexString   `json:"idType"`
	IDValue          FlexString   `json:"idValue"`
	Name             FlexString   `json:"name"`
	Gender           FlexString   `json:"gender"`
	BirthDate        FlexString   `json:"birthDate"`
	PatientID        FlexString   `json:"patientId"`
}

// Envelope is the provider response wrapper.
type Envelope struct {
	Code FlexString      `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OK reports a numerically zero code, so "0", 0, 0.0 and "00" all pass. An
// absent or non-numeric code is not OK.
func (e Envelope) OK() bool {
	n, err := strconv.ParseFloat(strings.TrimSpace(e.Code.String()), 64)
	return err == nil && n == 0
}

func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Decode parses a bare document.
func Decode(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("portrait: decode document: %w", err)
	}
	return &doc, nil
}

// DecodeAny accepts either a provider envelope or a bare document. Any object
// carrying a "code" key is an envelope; a non-zero code or an empty payload
// yields (nil, nil), as does an empty or null body.
func DecodeAny(b []byte) (*Document, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("portrait: decode: %w", err)
	}
	if _, isEnvelope := fields["code"]; !isEnvelope {
		return Decode(b)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("portrait: decode envelope: %w", err)
	}
	if !env.OK() || !env.HasData() {
		return nil, nil
	}
	return Decode(env.Data)
}
