package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/presence"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/quocanhngo/managex/pkg/auth"
	"github.com/quocanhngo/managex/pkg/geo"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DeviceService handles device registration, check-ins and the admin read paths
type DeviceService struct {
	devices    *repository.DeviceRepository
	usage      *repository.UsageRepository
	tokens     *auth.DeviceTokens
	evaluator  *presence.Evaluator
	broker     fanout.Broker
	locator    geo.Locator
	geoTimeout time.Duration
	log        zerolog.Logger
}

func NewDeviceService(
	devices *repository.DeviceRepository,
	usage *repository.UsageRepository,
	tokens *auth.DeviceTokens,
	evaluator *presence.Evaluator,
	broker fanout.Broker,
	locator geo.Locator,
	geoTimeout time.Duration,
	log zerolog.Logger,
) *DeviceService {
	if locator == nil {
		locator = geo.Noop{}
	}
	return &DeviceService{
		devices:    devices,
		usage:      usage,
		tokens:     tokens,
		evaluator:  evaluator,
		broker:     broker,
		locator:    locator,
		geoTimeout: geoTimeout,
		log:        log,
	}
}

// ==================== Agent endpoints ====================

// Register creates or refreshes a device and issues a new token. Any token
// issued earlier for the same device stops verifying.
func (s *DeviceService) Register(ctx context.Context, req model.RegisterDeviceRequest) (*model.RegisterDeviceResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, validationError("deviceId is required")
	}

	token, err := s.tokens.Issue(deviceID)
	if err != nil {
		return nil, fmt.Errorf("issue device token: %w", err)
	}

	now := s.evaluator.Now()
	device := &model.Device{
		DeviceID:  deviceID,
		Username:  req.Username,
		OS:        req.OS,
		Model:     req.Model,
		TokenHash: auth.HashToken(token),
		Online:    true,
		LastSeen:  &now,
	}
	if err := s.devices.UpsertRegistration(ctx, device); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	s.log.Info().Str("device_id", deviceID).Str("username", req.Username).Msg("device registered")

	return &model.RegisterDeviceResponse{
		DeviceToken: token,
		Device:      model.DeviceRef{DeviceID: deviceID},
	}, nil
}

// Authenticate checks a presented device token. Every failure is reported as
// ErrUnauthorized so callers cannot probe which device ids exist.
func (s *DeviceService) Authenticate(ctx context.Context, deviceID, token string) (*model.Device, error) {
	if deviceID == "" || token == "" {
		return nil, ErrUnauthorized
	}

	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if !auth.VerifyToken(token, device.TokenHash) {
		return nil, ErrUnauthorized
	}
	return device, nil
}

// Heartbeat refreshes presence and the IP-derived location, then tells the
// admins. A failed or slow lookup only means the location carries no city.
func (s *DeviceService) Heartbeat(ctx context.Context, deviceID, sourceAddr string) (*model.Device, error) {
	now := s.evaluator.Now()

	device, err := s.devices.RecordHeartbeat(ctx, deviceID, now, s.locate(ctx, sourceAddr, now))
	if err != nil {
		return nil, deviceLookupError(err)
	}

	s.publishUpdate(ctx, device)
	return device, nil
}

// ReportLocation merges device-reported coordinates over the last location
func (s *DeviceService) ReportLocation(ctx context.Context, req model.LocationRequest) (*model.Device, error) {
	if req.Lat == nil || req.Lng == nil {
		return nil, validationError("lat and lng must be numbers")
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		return nil, validationError("lat/lng out of range")
	}
	if req.AccuracyMeters != nil && *req.AccuracyMeters < 0 {
		return nil, validationError("accuracyMeters must not be negative")
	}

	now := s.evaluator.Now()
	device, err := s.devices.MergeLocation(ctx, req.DeviceID, model.Location{
		Method:         model.LocationMethodWIN,
		Lat:            req.Lat,
		Lng:            req.Lng,
		AccuracyMeters: req.AccuracyMeters,
		Timestamp:      &now,
	})
	if err != nil {
		return nil, deviceLookupError(err)
	}

	s.publishUpdate(ctx, device)
	return device, nil
}

// ==================== Admin read paths ====================

// ListDevices returns every device with presence derived at call time
func (s *DeviceService) ListDevices(ctx context.Context) ([]model.DeviceResponse, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	s.evaluator.Apply(devices)

	out := make([]model.DeviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, devices[i].ToResponse())
	}
	return out, nil
}

// GetDeviceDetail returns a device with today's summary and usage
func (s *DeviceService) GetDeviceDetail(ctx context.Context, deviceID string) (*model.DeviceDetailResponse, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, deviceLookupError(err)
	}
	device.Online = s.evaluator.Online(device)

	today := model.DayOf(s.evaluator.Now())

	summary, err := s.usage.FindSummary(ctx, deviceID, today)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		summary = &model.DailySummary{DeviceID: deviceID, Date: today}
	case err != nil:
		return nil, fmt.Errorf("find summary: %w", err)
	}

	usage, err := s.usage.ListByActivity(ctx, deviceID, today)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	return &model.DeviceDetailResponse{
		Device:  device.ToResponse(),
		Today:   today,
		Summary: *summary,
		Usage:   usage,
	}, nil
}

// ListTodaySoftware returns today's usage sorted by software name
func (s *DeviceService) ListTodaySoftware(ctx context.Context, deviceID string) (*model.SoftwareTodayResponse, error) {
	if _, err := s.devices.FindByID(ctx, deviceID); err != nil {
		return nil, deviceLookupError(err)
	}

	today := model.DayOf(s.evaluator.Now())
	usage, err := s.usage.ListByName(ctx, deviceID, today)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	return &model.SoftwareTodayResponse{DeviceID: deviceID, Date: today, Usage: usage}, nil
}

// ==================== Internal Helpers ====================

// locate builds the IP observation for a heartbeat, or nil when the source
// address is unusable
func (s *DeviceService) locate(ctx context.Context, sourceAddr string, now time.Time) *model.Location {
	ip := geo.ParseIP(sourceAddr)
	if ip == nil {
		return nil
	}
	addr := ip.String()
	loc := &model.Location{
		Method:    model.LocationMethodIP,
		IP:        &addr,
		Timestamp: &now,
	}

	lookupCtx := ctx
	if s.geoTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.geoTimeout)
		defer cancel()
	}

	res, err := s.locator.Lookup(lookupCtx, addr)
	if err != nil {
		if !errors.Is(err, geo.ErrNotFound) {
			s.log.Debug().Err(err).Str("ip", addr).Msg("ip geolocation failed")
		}
		return loc
	}

	if res.City != "" {
		loc.City = &res.City
	}
	if res.Region != "" {
		loc.Region = &res.Region
	}
	if res.Country != "" {
		loc.Country = &res.Country
	}
	if res.Lat != nil && res.Lng != nil {
		loc.Lat, loc.Lng = res.Lat, res.Lng
	}
	return loc
}

func (s *DeviceService) publishUpdate(ctx context.Context, device *model.Device) {
	device.Online = s.evaluator.Online(device)
	s.broker.Publish(ctx, fanout.AdminsChannel, &model.WSEvent{
		Type:    model.WSEventDeviceUpdate,
		Payload: device.ToUpdateEvent(),
	})
}
