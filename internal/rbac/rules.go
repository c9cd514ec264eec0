package rbac

const (
	PermAnswerKeyCreate = "answerkey:create"
	PermAnswerKeyView   = "answerkey:view"
	PermAnswerKeyUpdate = "answerkey:update"
	PermAnswerKeyDelete = "answerkey:delete"
	PermCorrectionRun   = "correction:run"
	PermCorrectionView  = "correction:view"
	PermSheetView       = "sheet:view"
	PermChangePassword  = "user:change_password"
)

// RolePermissions is the default policy. Ownership of individual answer keys
// is enforced by the services, not here.
var RolePermissions = map[string][]string{
	"teacher": {
		"answerkey:*",
		"correction:*",
		PermSheetView,
		PermChangePassword,
	},
	"admin": {
		"*",
	},
}
