package service

import (
	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/domain"
)

// AccessRequest describes a download attempt against a file record.
type AccessRequest struct {
	// Caller is the authenticated identity, or nil for anonymous requests.
	Caller *auth.Identity

	// Password is the file password supplied with the request, if any.
	Password string
}

// EvaluateAccess decides whether a download request may proceed.
//
//	public:    anyone holding the link id.
//	private:   the owner only; anonymous and non-owner callers are denied.
//	protected: anyone holding the link id and the file password. The owner
//	           gets no bypass; losing the file password means re-sharing.
func EvaluateAccess(file *domain.FileRecord, req AccessRequest, hasher *auth.PasswordHasher) error {
	switch file.Permission {
	case domain.PermissionPublic:
		return nil

	case domain.PermissionPrivate:
		if req.Caller == nil || req.Caller.UserID != file.OwnerID {
			return domain.ErrAccessDenied
		}
		return nil

	case domain.PermissionProtected:
		if file.PasswordHash == nil {
			// Protected without a hash violates the record invariant.
			return domain.ErrAccessDenied
		}
		if req.Password == "" || !hasher.Verify(req.Password, *file.PasswordHash) {
			return domain.ErrPasswordMismatch
		}
		return nil
	}

	return domain.ErrAccessDenied
}
