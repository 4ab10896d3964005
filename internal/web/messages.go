package web

// リダイレクトの error クエリに載せる理由コードです。
const (
	ReasonMissingUsername = "missing_username"
	ReasonMissingPassword = "missing_password"
	ReasonExists          = "exists"
	ReasonFailedCheck     = "failed_check"
	ReasonTooLong         = "too_long"
)

var signupMessages = map[string]string{
	ReasonMissingUsername: "Please provide a username",
	ReasonMissingPassword: "Please provide a password",
	ReasonExists:          "User already exists",
	ReasonTooLong:         "Username or password is too long",
}

var loginMessages = map[string]string{
	ReasonMissingUsername: "Please provide a username",
	ReasonMissingPassword: "Please provide a password",
	ReasonFailedCheck:     "Username or password not found",
}

// SignupMessage は理由コードに対応するメッセージを返します。未知のコードは空文字です。
func SignupMessage(code string) string {
	return signupMessages[code]
}

// LoginMessage は理由コードに対応するメッセージを返します。未知のコードは空文字です。
func LoginMessage(code string) string {
	return loginMessages[code]
}
