package cartserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/c0deZ3R0/go-cart-sync/identity"
)

const ownerKey = "cart_owner"

// Authenticator turns a bearer credential into a user id.
type Authenticator interface {
	Authenticate(credential string) (user string, err error)
}

// OpaqueTokens treats the credential itself as the user id.
type OpaqueTokens struct{}

func (OpaqueTokens) Authenticate(credential string) (string, error) {
	return credential, nil
}

// HMACTokens accepts HS256 JWTs signed with Secret and uses their subject
// as the user id.
type HMACTokens struct {
	Secret []byte
}

func (h HMACTokens) Authenticate(credential string) (string, error) {
	token, err := jwt.Parse(credential, func(*jwt.Token) (interface{}, error) {
		return h.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// resolveOwner is middleware deciding whose cart a request addresses. A
// request carrying both identities is rejected.
func resolveOwner(auth Authenticator, guestHeader string) gin.HandlerFunc {
	if guestHeader == "" {
		guestHeader = identity.DefaultGuestHeader
	}
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		guest := c.GetHeader(guestHeader)

		if authz != "" && guest != "" {
			abortWithError(c, http.StatusBadRequest, "AMBIGUOUS_IDENTITY", "send either a bearer credential or a guest token, not both")
			return
		}

		switch {
		case authz != "":
			credential, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || credential == "" {
				abortWithError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", "authorization must be a bearer credential")
				return
			}
			user, err := auth.Authenticate(credential)
			if err != nil {
				abortWithError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", err.Error())
				return
			}
			c.Set(ownerKey, Owner{User: user})
		case guest != "":
			c.Set(ownerKey, Owner{Guest: guest})
		default:
			abortWithError(c, http.StatusUnauthorized, "MISSING_IDENTITY", "a bearer credential or a guest token is required")
			return
		}
		c.Next()
	}
}

func ownerOf(c *gin.Context) Owner {
	o, _ := c.Get(ownerKey)
	owner, _ := o.(Owner)
	return owner
}
