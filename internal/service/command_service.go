package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/rs/zerolog"
)

var commandMessages = map[model.Command]string{
	model.CommandLock:   "Device locked by Admin. Please contact IT support.",
	model.CommandUnlock: "Device unlocked by Admin.",
}

// CommandService relays admin directives to devices. Delivery is best effort:
// the stored lock state records intent, not what the device actually did.
type CommandService struct {
	devices *repository.DeviceRepository
	broker  fanout.Broker
	log     zerolog.Logger
}

func NewCommandService(devices *repository.DeviceRepository, broker fanout.Broker, log zerolog.Logger) *CommandService {
	return &CommandService{devices: devices, broker: broker, log: log}
}

// Dispatch publishes command to the device channel, then persists the
// resulting lock state. It succeeds whether or not the device is connected.
func (s *CommandService) Dispatch(ctx context.Context, deviceID, command string) error {
	cmd := model.Command(strings.ToUpper(strings.TrimSpace(command)))
	if !cmd.Valid() {
		return validationError("command must be LOCK or UNLOCK")
	}

	if _, err := s.devices.FindByID(ctx, deviceID); err != nil {
		return deviceLookupError(err)
	}

	s.broker.Publish(ctx, fanout.DeviceChannel(deviceID), &model.WSEvent{
		Type: model.WSEventCommand,
		Payload: model.CommandEvent{
			Command: cmd,
			Message: commandMessages[cmd],
		},
	})

	if err := s.devices.SetLockState(ctx, deviceID, cmd.LockState()); err != nil {
		return fmt.Errorf("persist lock state: %w", deviceLookupError(err))
	}

	s.log.Info().Str("device_id", deviceID).Str("command", string(cmd)).Msg("command dispatched")
	return nil
}
