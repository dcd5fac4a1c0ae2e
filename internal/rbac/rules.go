package rbac

const (
	PermQuizCreate     = "quiz:create"
	PermQuizViewOwn    = "quiz:view_own"
	PermQuizEditOwn    = "quiz:edit_own"
	PermQuizDeleteOwn  = "quiz:delete_own"
	PermQuizResults    = "quiz:results"
	PermQuizzesListAll = "quizzes:list_all"
	PermAttemptCreate  = "attempt:create"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view_own"
	PermMeView         = "me:view"
	PermMePassword     = "me:change_password"
	PermUsersList      = "users:list"
	PermUsersSetRole   = "users:set_role"
)

// RolePermissions is the default policy. Ownership of individual quizzes is
// checked by the quiz service; these only gate the route.
var RolePermissions = map[string][]string{
	"student": {
		"attempt:*",
		"me:*",
	},
	"teacher": {
		"quiz:*",
		"attempt:*",
		"me:*",
	},
	"admin": {
		"*", // everything
	},
}
