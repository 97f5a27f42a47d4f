package http

import (
	"errors"
	"net/http"

	"taxipulse/internal/dataprocessing"
	apierrors "taxipulse/internal/errors"
	"taxipulse/internal/services"
)

// toAPIError maps domain errors onto API errors. Unknown errors are
// returned unchanged for the error handler to classify.
func toAPIError(err error) error {
	var ingErr *dataprocessing.IngestionError
	if errors.As(err, &ingErr) {
		switch ingErr.Kind {
		case dataprocessing.SizeExceeded:
			return apierrors.New(http.StatusRequestEntityTooLarge, apierrors.CodePayloadTooLarge, ingErr.Error())
		case dataprocessing.EmptyResult:
			return apierrors.New(http.StatusUnprocessableEntity, apierrors.CodeEmptyResult, ingErr.Error())
		case dataprocessing.DecodeError:
			return apierrors.New(http.StatusUnprocessableEntity, apierrors.CodeDecodeError, ingErr.Error())
		}
	}

	var anErr *dataprocessing.AnalysisError
	if errors.As(err, &anErr) {
		switch anErr.Kind {
		case dataprocessing.ColumnNotFound:
			return apierrors.NewWithDetails(http.StatusNotFound, apierrors.CodeColumnNotFound, anErr.Error(),
				map[string]string{"column": anErr.Column})
		case dataprocessing.InvalidAggregationRequest:
			return apierrors.New(http.StatusBadRequest, apierrors.CodeInvalidAnalysis, anErr.Error())
		}
	}

	switch {
	case errors.Is(err, services.ErrDatasetNotFound):
		return apierrors.New(http.StatusNotFound, apierrors.CodeDatasetNotFound, err.Error())
	case errors.Is(err, services.ErrTooManyAnalyses):
		return apierrors.New(http.StatusBadRequest, apierrors.CodeInvalidAnalysis, err.Error())
	case errors.Is(err, services.ErrNoResults):
		return apierrors.New(http.StatusUnprocessableEntity, apierrors.CodeEmptyResult, err.Error())
	}
	return err
}
