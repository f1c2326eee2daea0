package prov

// Namespace IRIs for every prefix the serializers may emit.
//
// Predicates and classes are carried as prefixed names throughout the
// package; the prefix table below is the single mapping both serializers
// share, so re-parsed statements compare without expansion.
var Prefixes = map[string]string{
	"prov": "http://www.w3.org/ns/prov#",
	"nidm": "http://purl.org/nidash/nidm#",
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
}

// Node classes.
const (
	ClassSoftwareAgent = "prov:SoftwareAgent"
	ClassActivity      = "prov:Activity"
	ClassEntity        = "prov:Entity"
	ClassMeasurement   = "nidm:Measurement"
)

// Relation predicates.
const (
	PredType           = "rdf:type"
	PredUsed           = "prov:used"
	PredGeneratedBy    = "prov:wasGeneratedBy"
	PredAssociatedWith = "prov:wasAssociatedWith"
	PredDerivedFrom    = "prov:wasDerivedFrom"
)

// Literal attribute predicates.
const (
	PredLabel     = "rdfs:label"
	PredStartedAt = "prov:startedAtTime"
	PredEndedAt   = "prov:endedAtTime"
	PredLocation  = "prov:atLocation"

	PredStatus    = "nidm:status"
	PredModality  = "nidm:modality"
	PredVersion   = "nidm:softwareVersion"
	PredStructure = "nidm:structureName"
	PredMetric    = "nidm:measureOf"
	PredValue     = "nidm:value"
	PredUnit      = "nidm:units"
)

// Literal datatypes.
const (
	DatatypeDouble   = "xsd:double"
	DatatypeDateTime = "xsd:dateTime"
)
