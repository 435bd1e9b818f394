package service

import "oceanstella/api/internal/apperr"

var (
	ErrSignupDisabled      = apperr.New(apperr.KindAuthorization, "signup_disabled", "Signups disabled")
	ErrEmailTaken          = apperr.New(apperr.KindConflict, "email_taken", "Email already in use")
	ErrEmailDispatchFailed = apperr.New(apperr.KindDependency, "email_dispatch_failed", "Could not send verification email. Please check SMTP settings.")
	ErrUserNotFound        = apperr.New(apperr.KindNotFound, "user_not_found", "User not found")

	ErrOTPNotRequested  = apperr.New(apperr.KindValidation, "otp_not_requested", "No OTP requested")
	ErrOTPExpired       = apperr.New(apperr.KindValidation, "otp_expired", "OTP expired")
	ErrInvalidCode      = apperr.New(apperr.KindValidation, "invalid_code", "Invalid code")
	ErrTooManyAttempts  = apperr.New(apperr.KindRateLimit, "too_many_attempts", "Too many attempts. Resend code.")
	ErrResendTooSoon    = apperr.New(apperr.KindRateLimit, "resend_too_soon", "Wait 60 seconds before resending")
	ErrEmailNotVerified = apperr.New(apperr.KindAuthorization, "email_not_verified", "Please verify your email first")

	ErrInvalidCredentials = apperr.New(apperr.KindAuthentication, "invalid_credentials", "Invalid credentials")
	ErrNoRefreshToken     = apperr.New(apperr.KindAuthentication, "no_refresh_token", "No refresh token")
	ErrSessionExpired     = apperr.New(apperr.KindAuthentication, "session_expired", "Session expired")
	ErrUserDisabled       = apperr.New(apperr.KindAuthentication, "user_disabled", "User disabled")
	ErrInvalidUser        = apperr.New(apperr.KindAuthentication, "invalid_user", "Invalid user")
	ErrUnauthenticated    = apperr.New(apperr.KindAuthentication, "unauthenticated", "No session")
	ErrVerifyEmailFirst   = apperr.New(apperr.KindAuthorization, "verify_email_first", "Verify your email first")
	ErrSessionNotFound    = apperr.New(apperr.KindNotFound, "session_not_found", "Session not found")

	ErrMissingIDToken       = apperr.New(apperr.KindValidation, "missing_id_token", "Missing idToken")
	ErrInvalidExternalToken = apperr.New(apperr.KindAuthentication, "invalid_external_token", "Invalid Google token")
	ErrNoEmailInToken       = apperr.New(apperr.KindValidation, "no_email_in_token", "No email in Google account")
	ErrFederationDisabled   = apperr.New(apperr.KindDependency, "federation_disabled", "Google sign-in is not configured")
	ErrAccountDisabled      = apperr.New(apperr.KindAuthorization, "account_disabled", "Account disabled")

	ErrForbidden        = apperr.New(apperr.KindAuthorization, "forbidden", "Forbidden")
	ErrCannotDeleteSelf = apperr.New(apperr.KindValidation, "cannot_delete_self", "You cannot delete your own account")

	ErrUploadDisabled    = apperr.New(apperr.KindDependency, "upload_disabled", "Uploads are not configured")
	ErrUnsupportedImage  = apperr.New(apperr.KindValidation, "unsupported_image", "Unsupported image format")
	ErrUploadTooLarge    = apperr.New(apperr.KindValidation, "upload_too_large", "File too large")
	ErrUploadFailed      = apperr.New(apperr.KindDependency, "upload_failed", "Upload failed")
	ErrAvatarRequirement = apperr.New(apperr.KindValidation, "avatar_fields_required", "url & publicId required")
)
