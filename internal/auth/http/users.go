package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// MeHandler godoc
//
//	@Summary		Current user
//	@Description	Returns the signed-in user with profile and linked providers.
//	@Tags			Users
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.ErrorEnvelope
//	@Failure		404	{object}	authsdk.ErrorEnvelope
//	@Security		CookieAuth
//	@Router			/v1/users/me [get]
func MeHandler(auth *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, _ := httpx.UserID(ctx)
		u, err := auth.Me(ctx, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toUser(u)})
	}
}
