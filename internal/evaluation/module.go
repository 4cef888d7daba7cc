package evaluation

import "strings"

// Kind distinguishes the two answer shapes a module family can use.
type Kind string

const (
	KindScored Kind = "scored" // 0-5 integer score per item
	KindYesNo  Kind = "yesno"  // "Y"/"N" per item
)

// Module families.
const (
	FamilySurgery  = "surgery"
	FamilyOPD      = "opd"
	FamilyWetLab   = "wetlab"
	FamilyAcademic = "academic"
)

// ModuleSpec parameterizes one evaluation module: its item schema, answer
// kind, grading function and lifecycle quirks. All four families run through
// the same engine.
type ModuleSpec struct {
	Code         string
	Family       string
	Kind         Kind
	Items        []string
	RemarkBelow  int  // scored items under this value require a remark (0 = never)
	NeedsPatient bool // submission must carry a patient name, unique per intern
	TracksStreak bool // OPD competency streak
	GradeFor     func(total, max int) string
}

func gradeBands(excellent, mid, low string) func(total, max int) string {
	return func(total, max int) string {
		if max == 0 {
			return low
		}
		pct := float64(total) * 100 / float64(max)
		switch {
		case pct >= 80:
			return excellent
		case pct >= 50:
			return mid
		default:
			return low
		}
	}
}

var surgeryItems = []string{
	"povidone_prep",
	"draping",
	"conjunctival_peritomy",
	"haemostasis",
	"scleral_groove",
	"tunnel_dissection",
	"side_port_entry",
	"anterior_chamber_entry",
	"viscoelastic_use",
	"capsulorrhexis",
	"hydrodissection",
	"nucleus_prolapse",
	"nucleus_delivery",
	"cortex_aspiration",
	"iol_placement",
	"viscoelastic_removal",
	"wound_integrity",
	"anterior_chamber_formation",
	"overall_speed_fluidity",
}

// opdItems maps each OPD procedure code to its yes/no checklist.
var opdItems = map[string][]string{
	"refraction": {
		"history_taking",
		"visual_acuity",
		"retinoscopy",
		"subjective_correction",
		"prescription_advice",
	},
	"slitlamp": {
		"setup_alignment",
		"lids_adnexa",
		"cornea_examination",
		"anterior_chamber_assessment",
		"lens_examination",
	},
	"tonometry": {
		"instrument_calibration",
		"anaesthetic_instillation",
		"applanation_technique",
		"reading_accuracy",
		"infection_control",
	},
	"fundoscopy": {
		"pupil_dilatation",
		"media_assessment",
		"disc_evaluation",
		"macula_evaluation",
		"peripheral_retina",
	},
	"gonioscopy": {
		"lens_handling",
		"patient_instruction",
		"angle_identification",
		"grading_system",
	},
}

var wetlabItems = []string{
	"instrument_handling",
	"tissue_respect",
	"suturing_technique",
	"knot_tying",
	"wound_closure",
}

var academicItems = []string{
	"content",
	"organisation",
	"audiovisual_aids",
	"discussion_handling",
}

var registry = buildRegistry()

func buildRegistry() map[string]*ModuleSpec {
	r := map[string]*ModuleSpec{
		"surgery": {
			Code:         "surgery",
			Family:       FamilySurgery,
			Kind:         KindScored,
			Items:        surgeryItems,
			RemarkBelow:  3,
			NeedsPatient: true,
			GradeFor:     gradeBands("Excellent", "Average", "Poor"),
		},
		"wetlab": {
			Code:     "wetlab",
			Family:   FamilyWetLab,
			Kind:     KindScored,
			Items:    wetlabItems,
			GradeFor: gradeBands("Excellent", "Good", "Poor"),
		},
		"academic": {
			Code:     "academic",
			Family:   FamilyAcademic,
			Kind:     KindScored,
			Items:    academicItems,
			GradeFor: gradeBands("Excellent", "Average", "Below Average"),
		},
	}
	for code, items := range opdItems {
		r["opd:"+code] = &ModuleSpec{
			Code:         "opd:" + code,
			Family:       FamilyOPD,
			Kind:         KindYesNo,
			Items:        items,
			TracksStreak: true,
		}
	}
	return r
}

// ModuleByCode resolves a container module code ("surgery", "opd:refraction", ...).
func ModuleByCode(code string) (*ModuleSpec, bool) {
	m, ok := registry[code]
	return m, ok
}

// OPDCodes lists the registered OPD procedure codes.
func OPDCodes() []string {
	codes := make([]string, 0, len(opdItems))
	for code := range opdItems {
		codes = append(codes, code)
	}
	return codes
}

// DisplayName strips the family prefix from container module codes for
// user-facing output ("opd:refraction" -> "refraction").
func DisplayName(code string) string {
	return strings.TrimPrefix(code, "opd:")
}

// ModuleCodes lists every registered container module code.
func ModuleCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// Validate checks submitted answers against the module's item schema.
// The answer set must cover the schema exactly; unknown or missing items
// are rejected before any business logic runs.
func (m *ModuleSpec) Validate(answers []Answer) error {
	seen := make(map[string]bool, len(answers))
	known := make(map[string]bool, len(m.Items))
	for _, item := range m.Items {
		known[item] = true
	}
	for _, a := range answers {
		if !known[a.Item] {
			return &ValidationError{Msg: "unknown item", Item: a.Item}
		}
		if seen[a.Item] {
			return &ValidationError{Msg: "duplicate item", Item: a.Item}
		}
		seen[a.Item] = true

		switch m.Kind {
		case KindScored:
			if a.Score == nil {
				return &ValidationError{Msg: "missing score", Item: a.Item}
			}
			if *a.Score < 0 || *a.Score > 5 {
				return &ValidationError{Msg: "score out of range", Item: a.Item}
			}
			if m.RemarkBelow > 0 && *a.Score < m.RemarkBelow && a.Remark == "" {
				return &ValidationError{Msg: "remark required for low score", Item: a.Item}
			}
		case KindYesNo:
			if a.YesNo != "Y" && a.YesNo != "N" {
				return &ValidationError{Msg: "answer must be Y or N", Item: a.Item}
			}
		}
	}
	if len(seen) != len(m.Items) {
		for _, item := range m.Items {
			if !seen[item] {
				return &ValidationError{Msg: "missing item", Item: item}
			}
		}
	}
	return nil
}

// Derive computes the total, grade, result and initial status for a
// validated answer set.
func (m *ModuleSpec) Derive(answers []Answer) (total, max int, grade string, result Result, status Status) {
	switch m.Kind {
	case KindScored:
		max = len(m.Items) * 5
		for _, a := range answers {
			total += *a.Score
		}
		grade = m.GradeFor(total, max)
		return total, max, grade, ResultNone, StatusPendingAck
	case KindYesNo:
		result = ResultPass
		for _, a := range answers {
			if a.YesNo != "Y" {
				result = ResultFail
				break
			}
		}
		if result == ResultPass {
			return 0, 0, "", ResultPass, StatusPendingAck
		}
		return 0, 0, "", ResultFail, StatusTemporary
	}
	return 0, 0, "", ResultNone, StatusPendingAck
}
