// Package errs provides the error vocabulary shared by every layer of the
// freight service.
//
// Each error kind has a sentinel (ErrValueIsRequired, ErrValueIsInvalid,
// ErrValueIsOutOfRange, ErrObjectNotFound) and a struct carrying details.
// The structs unwrap to their sentinel so callers classify failures with
// errors.Is:
//
//	if errors.Is(err, errs.ErrObjectNotFound) {
//	    return echo.NewHTTPError(http.StatusNotFound, err.Error())
//	}
//
// IsValidation groups the three input errors; the activity layer uses it
// to decide that a failure is not worth retrying.
package errs
