package safety

// Category is one of the exactly-thirteen moderation categories the Safety
// Filter supports (§4.1). Adding or removing a category is a contract
// break; see TestCategories_ExactlyThirteen.
type Category string

const (
	CategoryHarassment             Category = "harassment"
	CategoryHarassmentThreatening  Category = "harassment/threatening"
	CategoryHate                   Category = "hate"
	CategoryHateThreatening        Category = "hate/threatening"
	CategorySexual                 Category = "sexual"
	CategorySexualMinors           Category = "sexual/minors"
	CategoryViolence                Category = "violence"
	CategoryViolenceGraphic        Category = "violence/graphic"
	CategorySelfHarm                Category = "self-harm"
	CategorySelfHarmIntent         Category = "self-harm/intent"
	CategorySelfHarmInstructions   Category = "self-harm/instructions"
	CategoryIllicit                 Category = "illicit"
	CategoryIllicitViolent          Category = "illicit/violent"
)

// Categories is the fixed, ordered moderation vocabulary. Its length must
// stay exactly 13 (§8 universal invariant: |categories_flagged_space| = 13).
var Categories = []Category{
	CategoryHarassment,
	CategoryHarassmentThreatening,
	CategoryHate,
	CategoryHateThreatening,
	CategorySexual,
	CategorySexualMinors,
	CategoryViolence,
	CategoryViolenceGraphic,
	CategorySelfHarm,
	CategorySelfHarmIntent,
	CategorySelfHarmInstructions,
	CategoryIllicit,
	CategoryIllicitViolent,
}
