package analyze

// domainDefaults maps well-known domains to keyword sets used for
// padding thin analyzer output and for lexical fallback detection.
var domainDefaults = map[string][]string{
	"medical": {
		"health", "patient", "doctor", "treatment", "diagnosis", "symptoms",
		"medicine", "hospital", "disease", "therapy", "prescription", "clinic",
		"medical", "healthcare", "wellness", "condition", "care", "physician",
		"nurse", "medication",
	},
	"legal": {
		"law", "court", "legal", "attorney", "lawyer", "case", "contract",
		"rights", "litigation", "judge", "verdict", "lawsuit", "compliance",
		"regulation", "statute", "defendant", "plaintiff", "trial", "evidence",
		"testimony",
	},
	"cooking": {
		"recipe", "cook", "ingredient", "food", "kitchen", "meal", "dish",
		"flavor", "cuisine", "bake", "chef", "cooking", "taste", "serve",
		"prepare", "dinner", "lunch", "breakfast", "snack", "dessert",
	},
	"technology": {
		"software", "code", "programming", "computer", "system", "data",
		"network", "security", "cloud", "application", "development",
		"algorithm", "database", "API", "server", "hardware", "digital",
		"technology", "tech", "IT",
	},
	"finance": {
		"money", "investment", "bank", "finance", "budget", "tax", "stock",
		"credit", "loan", "savings", "financial", "accounting", "capital",
		"asset", "portfolio", "market", "trading", "insurance", "wealth",
		"income",
	},
}

// domainIndicators are the shorter lists used by the lexical fallback
// when the LLM is unavailable. Order matters: first match wins, so
// iteration goes through detectOrder.
var domainIndicators = map[string][]string{
	"medical":    {"medical", "doctor", "patient", "health", "hospital", "treatment"},
	"legal":      {"legal", "law", "attorney", "court", "contract", "rights"},
	"cooking":    {"cook", "recipe", "food", "chef", "kitchen", "ingredient"},
	"technology": {"tech", "software", "code", "programming", "computer"},
	"finance":    {"finance", "money", "bank", "investment", "budget"},
}

var detectOrder = []string{"medical", "legal", "cooking", "technology", "finance"}
