package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims identifies an admin caller.
type CustomClaims struct {
	Subject string `json:"sub_id"`
	jwt.RegisteredClaims
}

// CallbackClaims binds a callback URL to the lane and episode it was issued
// for. The registered ID is the dispatch nonce.
type CallbackClaims struct {
	Kind          string `json:"kind"`
	ContentItemID int64  `json:"content_item_id"`
	jwt.RegisteredClaims
}

type TokenRequest struct {
	Subject string `json:"subject"`
}
