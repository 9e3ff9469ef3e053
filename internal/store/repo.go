package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceOnline   = errors.New("only offline devices can be deleted")
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&Device{}, &RoomSensorSnapshot{}, &Notification{}, &SensorSetting{}, &SecuritySetting{}, &User{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := &Repo{db: db}
	if err := r.seedSecurityDefaults(context.Background()); err != nil {
		return nil, fmt.Errorf("seed security settings: %w", err)
	}
	return r, nil
}

// --- Devices ---

func (r *Repo) FindDevice(ctx context.Context, id string) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertDevice creates the device on first sight and otherwise merges the
// non-empty fields into the stored row, mirroring at-least-once delivery:
// replaying the same message is a no-op.
func (r *Repo) UpsertDevice(ctx context.Context, d *Device) error {
	existing, err := r.FindDevice(ctx, d.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		if d.Name == "" {
			d.Name = d.ID
		}
		return r.db.WithContext(ctx).Create(d).Error
	}
	if d.Name != "" {
		existing.Name = d.Name
	}
	if d.Type != "" {
		existing.Type = d.Type
	}
	if d.Location != "" {
		existing.Location = d.Location
	}
	if d.LastState != "" {
		existing.LastState = d.LastState
	}
	if d.Status != "" {
		existing.Status = d.Status
	}
	if d.Password != "" {
		existing.Password = d.Password
	}
	return r.db.WithContext(ctx).Save(existing).Error
}

func (r *Repo) SaveDevice(ctx context.Context, d *Device) error {
	return r.db.WithContext(ctx).Save(d).Error
}

// ListDevices returns all devices, or only those in the given room when
// location is non-empty.
func (r *Repo) ListDevices(ctx context.Context, location string) ([]Device, error) {
	var rows []Device
	q := r.db.WithContext(ctx).Order("id asc")
	if location != "" {
		q = q.Where("location = ?", location)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) RenameDevice(ctx context.Context, id, name string) (*Device, error) {
	d, err := r.FindDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDeviceNotFound
	}
	d.Name = strings.TrimSpace(name)
	if err := r.db.WithContext(ctx).Save(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteOfflineDevice removes a device from a room. Online devices are
// refused: an operator must not delete hardware that is still reporting.
func (r *Repo) DeleteOfflineDevice(ctx context.Context, location, id string) error {
	var d Device
	err := r.db.WithContext(ctx).First(&d, "id = ? AND location = ?", id, location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeviceNotFound
	}
	if err != nil {
		return err
	}
	if d.Status != DeviceStatusOffline {
		return ErrDeviceOnline
	}
	return r.db.WithContext(ctx).Delete(&Device{}, "id = ? AND location = ?", id, location).Error
}

// --- Room snapshots ---

func (r *Repo) FindRoomSnapshot(ctx context.Context, location string) (*RoomSensorSnapshot, error) {
	var s RoomSensorSnapshot
	err := r.db.WithContext(ctx).First(&s, "location = ?", location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertRoomSnapshot overwrites the single snapshot row for snap.Location.
// Sensor values are merged: a nil value keeps whatever the previous reading
// stored, so sensors reporting on different topics do not erase each other.
func (r *Repo) UpsertRoomSnapshot(ctx context.Context, snap *RoomSensorSnapshot) error {
	existing, err := r.FindRoomSnapshot(ctx, snap.Location)
	if err != nil {
		return err
	}
	if existing == nil {
		if snap.ID == uuid.Nil {
			snap.ID = uuid.New()
		}
		return r.db.WithContext(ctx).Create(snap).Error
	}
	if snap.Temperature != nil {
		existing.Temperature = snap.Temperature
	}
	if snap.Humidity != nil {
		existing.Humidity = snap.Humidity
	}
	if snap.GasLevel != nil {
		existing.GasLevel = snap.GasLevel
	}
	if snap.LightLevel != nil {
		existing.LightLevel = snap.LightLevel
	}
	existing.HasWarning = snap.HasWarning
	existing.WarningMessage = snap.WarningMessage
	if err := r.db.WithContext(ctx).Save(existing).Error; err != nil {
		return err
	}
	*snap = *existing
	return nil
}

func (r *Repo) ListRoomSnapshots(ctx context.Context) ([]RoomSensorSnapshot, error) {
	var rows []RoomSensorSnapshot
	if err := r.db.WithContext(ctx).Order("location asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Notifications ---

func (r *Repo) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Severity == "" {
		n.Severity = SeverityLow
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repo) ListNotifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	var rows []Notification
	q := r.db.WithContext(ctx).Order("created_at desc")
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Notification{}).Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
}

func (r *Repo) MarkAllNotificationsRead(ctx context.Context) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Notification{}).Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
}

func (r *Repo) UnreadNotificationCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Notification{}).Where("is_read = ?", false).Count(&n).Error
	return n, err
}

func (r *Repo) MarkNotificationEmailSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Notification{}).Where("id = ?", id).
		Updates(map[string]any{"email_sent": true, "email_sent_at": now}).Error
}

// --- Users ---

func (r *Repo) SaveUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *Repo) ListUsers(ctx context.Context) ([]User, error) {
	var rows []User
	if err := r.db.WithContext(ctx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// NotificationRecipients resolves users entitled to receive alert emails.
func (r *Repo) NotificationRecipients(ctx context.Context) ([]User, error) {
	var rows []User
	err := r.db.WithContext(ctx).
		Where("can_view_notifications = ? AND email <> ''", true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Sensor threshold settings ---

func (r *Repo) SensorBounds(ctx context.Context, sensorType string) (*SensorSetting, error) {
	var s SensorSetting
	err := r.db.WithContext(ctx).First(&s, "sensor_type = ?", sensorType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) UpsertSensorSetting(ctx context.Context, sensorType string, min, max float64) error {
	existing, err := r.SensorBounds(ctx, sensorType)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(&SensorSetting{ID: uuid.New(), SensorType: sensorType, MinValue: min, MaxValue: max}).Error
	}
	existing.MinValue = min
	existing.MaxValue = max
	return r.db.WithContext(ctx).Save(existing).Error
}

func (r *Repo) ListSensorSettings(ctx context.Context) ([]SensorSetting, error) {
	var rows []SensorSetting
	if err := r.db.WithContext(ctx).Order("sensor_type asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Security settings ---

// SecurityInt reads a numeric security setting, falling back to def when the
// row is missing or malformed. Read at evaluation time, never cached, so
// operator changes apply to the next message.
func (r *Repo) SecurityInt(ctx context.Context, key string, def int) int {
	var s SecuritySetting
	err := r.db.WithContext(ctx).First(&s, "setting_key = ?", key).Error
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s.SettingValue))
	if err != nil {
		return def
	}
	return n
}

func (r *Repo) SecurityString(ctx context.Context, key, def string) string {
	var s SecuritySetting
	err := r.db.WithContext(ctx).First(&s, "setting_key = ?", key).Error
	if err != nil {
		return def
	}
	return s.SettingValue
}

func (r *Repo) UpsertSecuritySetting(ctx context.Context, key, value, valueType, description string) error {
	var s SecuritySetting
	err := r.db.WithContext(ctx).First(&s, "setting_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = SecuritySetting{ID: uuid.New(), SettingKey: key, SettingValue: value, ValueType: valueType, Description: description}
		if s.ValueType == "" {
			s.ValueType = "string"
		}
		return r.db.WithContext(ctx).Create(&s).Error
	}
	if err != nil {
		return err
	}
	s.SettingValue = value
	if valueType != "" {
		s.ValueType = valueType
	}
	if description != "" {
		s.Description = description
	}
	return r.db.WithContext(ctx).Save(&s).Error
}

func (r *Repo) ListSecuritySettings(ctx context.Context) ([]SecuritySetting, error) {
	var rows []SecuritySetting
	if err := r.db.WithContext(ctx).Order("setting_key asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) seedSecurityDefaults(ctx context.Context) error {
	defaults := []SecuritySetting{
		{SettingKey: KeyMaxDoorPasswordAttempts, SettingValue: "5", ValueType: "number",
			Description: "Số lần nhập sai mật khẩu tối đa trước khi cảnh báo"},
		{SettingKey: KeyPasswordAttemptResetMinutes, SettingValue: "30", ValueType: "number",
			Description: "Thời gian reset số lần nhập sai (phút)"},
	}
	for _, def := range defaults {
		var existing SecuritySetting
		err := r.db.WithContext(ctx).First(&existing, "setting_key = ?", def.SettingKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			def.ID = uuid.New()
			if err := r.db.WithContext(ctx).Create(&def).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
