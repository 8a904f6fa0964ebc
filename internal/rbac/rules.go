package rbac

const (
	PermQuestionImport = "question:import"
	PermTaxonomyCreate = "taxonomy:create"
	PermImportView     = "import:view"
	// PermImportAny lets a caller drive import sessions started by others.
	PermImportAny = "import:any"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"viewer": {
		PermImportView,
	},
	"editor": {
		PermImportView,
		PermQuestionImport,
		PermTaxonomyCreate,
	},
	"admin": {
		"*", // everything
	},
}
