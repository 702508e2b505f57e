package api

import (
	"context"
	"net/http"
	"net/url"

	"servifind/internal/models"
)

// Authenticated operations. They take a Doer rather than *Client so every
// call goes through the session manager's token handling.

// CurrentUser validates the current credential against the identity endpoint.
func CurrentUser(ctx context.Context, d Doer) (*models.User, error) {
	var user models.User
	if err := d.Do(ctx, Request{Method: http.MethodGet, Path: "/api/auth/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ServiceInput is the writable part of a service.
type ServiceInput struct {
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	Price        int64                 `json:"price"`
	Duration     string                `json:"duration"`
	Availability []models.Availability `json:"availability"`
}

// ListMyServices returns the authenticated provider's services.
func ListMyServices(ctx context.Context, d Doer) ([]models.Service, error) {
	var services []models.Service
	err := d.Do(ctx, Request{Method: http.MethodGet, Path: "/api/services/my-services"}, &services)
	if err != nil {
		return nil, err
	}
	return services, nil
}

// CreateService registers a new service for the authenticated provider.
func CreateService(ctx context.Context, d Doer, input ServiceInput) (*models.Service, error) {
	var service models.Service
	err := d.Do(ctx, Request{Method: http.MethodPost, Path: "/api/services", Body: input}, &service)
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// UpdateService replaces a service's writable fields.
func UpdateService(ctx context.Context, d Doer, serviceID string, input ServiceInput) (*models.Service, error) {
	var service models.Service
	err := d.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/services/" + url.PathEscape(serviceID),
		Body:   input,
	}, &service)
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// DeleteService removes a service.
func DeleteService(ctx context.Context, d Doer, serviceID string) error {
	return d.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/services/" + url.PathEscape(serviceID),
	}, nil)
}

// CreateBookingRequest reserves a (service, date, slot) tuple.
type CreateBookingRequest struct {
	ProviderID string `json:"providerId"`
	ServiceID  string `json:"serviceId"`
	Date       string `json:"date"`
	Slot       string `json:"slot"`
}

// CreateBooking reserves a slot. The returned booking carries the id that
// every later payment step requires.
func CreateBooking(ctx context.Context, d Doer, req CreateBookingRequest) (*models.Booking, error) {
	var booking models.Booking
	if err := d.Do(ctx, Request{Method: http.MethodPost, Path: "/api/bookings", Body: req}, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// PaymentOrder is the gateway order issued for a booking's price.
type PaymentOrder struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreatePaymentOrder requests a gateway order token for a booking.
func CreatePaymentOrder(ctx context.Context, d Doer, amount int64, bookingID string) (*PaymentOrder, error) {
	var order PaymentOrder
	err := d.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/payments/create-order",
		Body:   map[string]any{"amount": amount, "bookingId": bookingID},
	}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifyPaymentRequest carries the gateway-issued identifiers back to the
// server for signature and amount verification.
type VerifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayPaymentID string `json:"razorpayPaymentId"`
	GatewaySignature string `json:"razorpaySignature"`
	BookingID        string `json:"bookingId"`
}

// VerifyPayment confirms a gateway authorization server-side. Rejections
// come back as payment-gateway errors, not validation errors.
func VerifyPayment(ctx context.Context, d Doer, req VerifyPaymentRequest) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	err := d.Do(ctx, Request{
		Method:       http.MethodPost,
		Path:         "/api/payments/verify-payment",
		Body:         req,
		GatewayScope: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ListMyBookings returns the authenticated user's bookings, newest first.
func ListMyBookings(ctx context.Context, d Doer) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Do(ctx, Request{Method: http.MethodGet, Path: "/api/bookings/my-bookings"}, &bookings)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// SubmitReview leaves a 1-5 rating against a provider for a booking.
func SubmitReview(ctx context.Context, d Doer, providerID, bookingID string, rating int, comment string) (*models.Review, error) {
	var review models.Review
	err := d.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/reviews",
		Body: map[string]any{
			"providerId": providerID,
			"bookingId":  bookingID,
			"rating":     rating,
			"comment":    comment,
		},
	}, &review)
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ProviderProfile is the provider's public listing profile.
type ProviderProfile struct {
	Service  string `json:"service"`
	Location string `json:"location"`
	Photo    string `json:"photo,omitempty"`
}

// GetProviderProfile returns the authenticated provider's own profile.
func GetProviderProfile(ctx context.Context, d Doer) (*ProviderProfile, error) {
	var profile ProviderProfile
	if err := d.Do(ctx, Request{Method: http.MethodGet, Path: "/api/providers/profile"}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProviderProfile replaces the authenticated provider's profile.
func UpdateProviderProfile(ctx context.Context, d Doer, profile ProviderProfile) (*ProviderProfile, error) {
	var updated ProviderProfile
	err := d.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/providers/profile",
		Body:   profile,
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
