package plugin

// Point identifies a fixed extension point in the request pipeline.
type Point string

const (
	BeforeSignUp  Point = "before_sign_up"
	AfterSignUp   Point = "after_sign_up"
	BeforeSignIn  Point = "before_sign_in"
	AfterSignIn   Point = "after_sign_in"
	BeforeSignOut Point = "before_sign_out"
	AfterSignOut  Point = "after_sign_out"

	BeforeSessionCreate  Point = "before_session_create"
	AfterSessionCreate   Point = "after_session_create"
	BeforeSessionRefresh Point = "before_session_refresh"
	AfterSessionRefresh  Point = "after_session_refresh"

	BeforeVerify Point = "before_verify"
	AfterVerify  Point = "after_verify"

	BeforeUserDelete Point = "before_user_delete"
	AfterUserDelete  Point = "after_user_delete"
)
