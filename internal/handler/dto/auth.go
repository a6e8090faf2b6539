package dto

// GenerateOTPRequest starts a sign-in.
type GenerateOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// GenerateOTPResponse carries the hash the client must echo back.
type GenerateOTPResponse struct {
	Hash string `json:"hash"`
}

// VerifyOTPRequest completes a sign-in.
type VerifyOTPRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	OTP           string `json:"otp" validate:"required,len=6,numeric"`
	Hash          string `json:"hash" validate:"required,max=256"`
	WalletAddress string `json:"walletAddress" validate:"omitempty,max=128"`
	Name          string `json:"name" validate:"omitempty,max=100"`
}

// UpdateProfileRequest renames the caller.
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}
