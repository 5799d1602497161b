package mcp

import "github.com/michiel/ratchet-sub007/internal/errs"

// jsonRPCCode maps an internal error category onto a JSON-RPC error code.
// There is no one-to-one correspondence with errs.Category.HTTPStatus:
// NotFound, Validation and Client map to invalid-params, Cancelled to
// request-cancelled, Security and RateLimit to the generic server-defined
// code, and every other category to internal-error. The category itself is
// not carried in the response.
func jsonRPCCode(category errs.Category) int {
	switch category {
	case errs.CategoryNotFound:
		return CodeInvalidParams
	case errs.CategoryValidation, errs.CategoryClient:
		return CodeInvalidParams
	case errs.CategoryCancelled:
		return CodeRequestCancelled
	case errs.CategorySecurity, errs.CategoryRateLimit:
		return CodeGeneric
	default:
		return CodeInternalError
	}
}
