package domain

import "strings"

// CallCategory is the canonical classification of a dispatch call type.
type CallCategory string

const (
	CategoryFire    CallCategory = "fire"
	CategoryMedical CallCategory = "medical"
	CategoryRescue  CallCategory = "rescue"
	CategoryTraffic CallCategory = "traffic"
	CategoryHazmat  CallCategory = "hazmat"
	CategoryOther   CallCategory = "other"
)

// callTypeTable maps known CAD call-type codes to a category. Codes vary by
// vendor and agency; this table is the union of codes observed across
// upstream providers. Lookup is case-insensitive on the trimmed code.
var callTypeTable = map[string]CallCategory{
	// Fire.
	"STRUF":     CategoryFire,
	"STRUCT":    CategoryFire,
	"STRUCTURE": CategoryFire,
	"SF":        CategoryFire,
	"RESF":      CategoryFire,
	"COMF":      CategoryFire,
	"APTF":      CategoryFire,
	"HOUSEF":    CategoryFire,
	"BLDGF":     CategoryFire,
	"CHIMF":     CategoryFire,
	"BASEMENTF": CategoryFire,
	"VEHF":      CategoryFire,
	"CARF":      CategoryFire,
	"TRUCKF":    CategoryFire,
	"BRUSHF":    CategoryFire,
	"BRUSH":     CategoryFire,
	"GRASSF":    CategoryFire,
	"WOODSF":    CategoryFire,
	"WILDF":     CategoryFire,
	"MULCHF":    CategoryFire,
	"TRASHF":    CategoryFire,
	"DUMPF":     CategoryFire,
	"ELECF":     CategoryFire,
	"APPLF":     CategoryFire,
	"OVENF":     CategoryFire,
	"STOVEF":    CategoryFire,
	"FALARM":    CategoryFire,
	"FA":        CategoryFire,
	"AFA":       CategoryFire,
	"BOXALARM":  CategoryFire,
	"SMOKEINV":  CategoryFire,
	"SMOKE":     CategoryFire,
	"ODORINV":   CategoryFire,
	"ILLEGALB":  CategoryFire,
	"CONTROLB":  CategoryFire,
	"EXPLO":     CategoryFire,
	"ARCING":    CategoryFire,
	"WIRESDOWN": CategoryFire,
	"TRANSF":    CategoryFire,
	"POLEF":     CategoryFire,

	// Medical.
	"EMS":        CategoryMedical,
	"MED":        CategoryMedical,
	"MEDICAL":    CategoryMedical,
	"SICK":       CategoryMedical,
	"INJ":        CategoryMedical,
	"INJURY":     CategoryMedical,
	"FALL":       CategoryMedical,
	"CARDIAC":    CategoryMedical,
	"CHESTP":     CategoryMedical,
	"ARREST":     CategoryMedical,
	"CPR":        CategoryMedical,
	"STROKE":     CategoryMedical,
	"CVA":        CategoryMedical,
	"SEIZURE":    CategoryMedical,
	"DIABETIC":   CategoryMedical,
	"BREATHING":  CategoryMedical,
	"SOB":        CategoryMedical,
	"CHOKE":      CategoryMedical,
	"CHOKING":    CategoryMedical,
	"ALLERGIC":   CategoryMedical,
	"OD":         CategoryMedical,
	"OVERDOSE":   CategoryMedical,
	"POISON":     CategoryMedical,
	"UNCON":      CategoryMedical,
	"UNRESP":     CategoryMedical,
	"SYNCOPE":    CategoryMedical,
	"BLEED":      CategoryMedical,
	"HEMORR":     CategoryMedical,
	"BURN":       CategoryMedical,
	"GSW":        CategoryMedical,
	"STAB":       CategoryMedical,
	"ASSAULTI":   CategoryMedical,
	"OB":         CategoryMedical,
	"CHILDBIRTH": CategoryMedical,
	"PSYCH":      CategoryMedical,
	"ALS":        CategoryMedical,
	"BLS":        CategoryMedical,
	"MEDALARM":   CategoryMedical,
	"LIFT":       CategoryMedical,
	"LIFTASSIST": CategoryMedical,
	"DOA":        CategoryMedical,

	// Rescue.
	"RESC":      CategoryRescue,
	"RESCUE":    CategoryRescue,
	"TRAP":      CategoryRescue,
	"ENTRAP":    CategoryRescue,
	"EXTRICATE": CategoryRescue,
	"WATERR":    CategoryRescue,
	"SWIFTW":    CategoryRescue,
	"ICERESC":   CategoryRescue,
	"BOATR":     CategoryRescue,
	"DROWN":     CategoryRescue,
	"HIGHANGLE": CategoryRescue,
	"ROPE":      CategoryRescue,
	"CONFSPACE": CategoryRescue,
	"TRENCH":    CategoryRescue,
	"COLLAPSE":  CategoryRescue,
	"ELEV":      CategoryRescue,
	"ELEVATOR":  CategoryRescue,
	"LOCKIN":    CategoryRescue,
	"SEARCH":    CategoryRescue,
	"MISSING":   CategoryRescue,
	"TECHR":     CategoryRescue,
	"MACHINE":   CategoryRescue,

	// Traffic.
	"MVA":       CategoryTraffic,
	"MVC":       CategoryTraffic,
	"TC":        CategoryTraffic,
	"ACC":       CategoryTraffic,
	"ACCIDENT":  CategoryTraffic,
	"CRASH":     CategoryTraffic,
	"MVAINJ":    CategoryTraffic,
	"MVAPD":     CategoryTraffic,
	"MVAPED":    CategoryTraffic,
	"MVAROLL":   CategoryTraffic,
	"MVAENT":    CategoryTraffic,
	"MVAUNK":    CategoryTraffic,
	"HITRUN":    CategoryTraffic,
	"PEDSTRUCK": CategoryTraffic,
	"VEHPED":    CategoryTraffic,
	"ROADHAZ":   CategoryTraffic,
	"TRAFHAZ":   CategoryTraffic,
	"DISABLEDV": CategoryTraffic,
	"TRAFSTOP":  CategoryTraffic,

	// Hazmat.
	"HAZMAT":    CategoryHazmat,
	"HAZ":       CategoryHazmat,
	"GASLEAK":   CategoryHazmat,
	"GASODOR":   CategoryHazmat,
	"GASINV":    CategoryHazmat,
	"NATGAS":    CategoryHazmat,
	"PROPANE":   CategoryHazmat,
	"FUELSPILL": CategoryHazmat,
	"SPILL":     CategoryHazmat,
	"CHEMSPILL": CategoryHazmat,
	"CHEM":      CategoryHazmat,
	"CO":        CategoryHazmat,
	"COALARM":   CategoryHazmat,
	"CODET":     CategoryHazmat,
	"CARBONMON": CategoryHazmat,
	"BIOHAZ":    CategoryHazmat,
	"RADIO":     CategoryHazmat,
	"PIPELINE":  CategoryHazmat,

	// Other / administrative.
	"ASSIST":    CategoryOther,
	"PUBASSIST": CategoryOther,
	"CITASSIST": CategoryOther,
	"MUTAID":    CategoryOther,
	"MOVEUP":    CategoryOther,
	"COVER":     CategoryOther,
	"STANDBY":   CategoryOther,
	"DETAIL":    CategoryOther,
	"INVEST":    CategoryOther,
	"ALARM":     CategoryOther,
	"TEST":      CategoryOther,
	"DRILL":     CategoryOther,
	"TRAINING":  CategoryOther,
	"WEATHER":   CategoryOther,
	"TREEDOWN":  CategoryOther,
	"FLOODCOND": CategoryOther,
	"ANIMAL":    CategoryOther,
	"NOISE":     CategoryOther,
	"WELFARE":   CategoryOther,
	"UNKNOWN":   CategoryOther,
}

// keywordRule maps descriptive-text substrings to a category. Rules are
// ordered: more specific phrases come before generic ones, and hazmat and
// traffic phrases are checked before fire/medical so that "vehicle fire"
// stays fire but "gas leak" never lands in fire via "gas".
type keywordRule struct {
	substr   string
	category CallCategory
}

var keywordRules = []keywordRule{
	{"hazmat", CategoryHazmat},
	{"gas leak", CategoryHazmat},
	{"gas odor", CategoryHazmat},
	{"odor of gas", CategoryHazmat},
	{"carbon monoxide", CategoryHazmat},
	{"fuel spill", CategoryHazmat},
	{"chemical", CategoryHazmat},
	{"spill", CategoryHazmat},

	{"vehicle fire", CategoryFire},
	{"car fire", CategoryFire},
	{"structure fire", CategoryFire},
	{"building fire", CategoryFire},
	{"brush fire", CategoryFire},
	{"fire alarm", CategoryFire},
	{"smoke", CategoryFire},
	{"fire", CategoryFire},
	{"wires down", CategoryFire},
	{"explosion", CategoryFire},

	{"motor vehicle", CategoryTraffic},
	{"mva", CategoryTraffic},
	{"collision", CategoryTraffic},
	{"crash", CategoryTraffic},
	{"pedestrian struck", CategoryTraffic},
	{"hit and run", CategoryTraffic},
	{"road hazard", CategoryTraffic},
	{"traffic", CategoryTraffic},

	{"water rescue", CategoryRescue},
	{"ice rescue", CategoryRescue},
	{"trapped", CategoryRescue},
	{"entrapment", CategoryRescue},
	{"extrication", CategoryRescue},
	{"collapse", CategoryRescue},
	{"elevator", CategoryRescue},
	{"rescue", CategoryRescue},
	{"missing person", CategoryRescue},

	{"cardiac", CategoryMedical},
	{"chest pain", CategoryMedical},
	{"breathing", CategoryMedical},
	{"unconscious", CategoryMedical},
	{"unresponsive", CategoryMedical},
	{"seizure", CategoryMedical},
	{"stroke", CategoryMedical},
	{"overdose", CategoryMedical},
	{"injury", CategoryMedical},
	{"injured", CategoryMedical},
	{"fall", CategoryMedical},
	{"sick", CategoryMedical},
	{"medical", CategoryMedical},
	{"ems", CategoryMedical},
	{"lift assist", CategoryMedical},
}

// MapCallTypeCategory resolves a CAD call-type code and its descriptive
// text to one of the six categories. The function is total: exact code
// match first, then ordered keyword match on code and description, and
// anything unrecognized resolves to CategoryOther.
func MapCallTypeCategory(code, description string) CallCategory {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if cat, ok := callTypeTable[trimmed]; ok {
		return cat
	}

	haystack := strings.ToLower(code + " " + description)
	for _, rule := range keywordRules {
		if strings.Contains(haystack, rule.substr) {
			return rule.category
		}
	}
	return CategoryOther
}
