package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Device types as announced by the firmware.
const (
	DeviceLight       = "light"
	DeviceDoor        = "door"
	DeviceWindow      = "window"
	DeviceTempHumid   = "temp_humid_sensor"
	DeviceGasSensor   = "gas_sensor"
	DeviceLightSensor = "light_sensor"
)

const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Canonical device states. Which subset applies depends on the device type.
const (
	StateOn       = "on"
	StateOff      = "off"
	StateLocked   = "locked"
	StateUnlocked = "unlocked"
	StateOpened   = "opened"
	StateClosed   = "closed"
)

const (
	NotificationSecurityAlert = "security_alert"
	NotificationSensorWarning = "sensor_warning"
	NotificationDeviceOffline = "device_offline"
	NotificationSystemInfo    = "system_info"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	KeyMaxDoorPasswordAttempts     = "max_door_password_attempts"
	KeyPasswordAttemptResetMinutes = "password_attempt_reset_time_minutes"
	KeyHomeName                    = "home_name"
	KeyHomeAddress                 = "home_address"
)

type Device struct {
	ID        string    `json:"id" gorm:"primaryKey;size:50"`
	Name      string    `json:"name" gorm:"size:100"`
	Type      string    `json:"type" gorm:"size:30;index"`
	Location  string    `json:"location" gorm:"size:50;index"`
	LastState string    `json:"last_state" gorm:"size:50"`
	Status    string    `json:"status" gorm:"size:10;default:offline"`
	Password  string    `json:"-" gorm:"size:100"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// RoomSensorSnapshot holds the latest reading per room. One row per location,
// overwritten on every sensor message; this is not a history table.
type RoomSensorSnapshot struct {
	ID             uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	Location       string    `json:"location" gorm:"uniqueIndex;size:50;not null"`
	Temperature    *float64  `json:"temperature"`
	Humidity       *float64  `json:"humidity"`
	GasLevel       *float64  `json:"gas_level"`
	LightLevel     *float64  `json:"light_level"`
	HasWarning     bool      `json:"has_warning"`
	WarningMessage string    `json:"warning_message"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (RoomSensorSnapshot) TableName() string { return "room_sensor_snapshots" }

type Notification struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Type        string         `json:"type" gorm:"size:30;index"`
	Title       string         `json:"title" gorm:"size:255"`
	Message     string         `json:"message" gorm:"type:text"`
	Severity    string         `json:"severity" gorm:"size:10;default:low"`
	Location    string         `json:"location" gorm:"size:50"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	IsRead      bool           `json:"is_read" gorm:"index"`
	ReadAt      *time.Time     `json:"read_at"`
	EmailSent   bool           `json:"email_sent"`
	EmailSentAt *time.Time     `json:"email_sent_at"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
}

func (Notification) TableName() string { return "notifications" }

// SensorSetting is an operator-configured warning range per sensor type.
type SensorSetting struct {
	ID         uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	SensorType string    `json:"sensor_type" gorm:"uniqueIndex;size:50;not null"`
	MinValue   float64   `json:"min"`
	MaxValue   float64   `json:"max"`
	UpdatedAt  time.Time `json:"-"`
}

func (SensorSetting) TableName() string { return "sensor_settings" }

// SecuritySetting is a typed key/value row read live by the security monitor,
// so operators can tune limits without a restart.
type SecuritySetting struct {
	ID           uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	SettingKey   string    `json:"key" gorm:"uniqueIndex;size:100;not null"`
	SettingValue string    `json:"value" gorm:"size:500"`
	ValueType    string    `json:"value_type" gorm:"size:10;default:string"` // string|number|boolean|json
	Description  string    `json:"description" gorm:"type:text"`
	UpdatedAt    time.Time `json:"-"`
}

func (SecuritySetting) TableName() string { return "security_settings" }

// User carries only what alert dispatch needs: who may see notifications and
// where to email them. Account management lives in another service.
type User struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name                 string    `json:"name" gorm:"size:100"`
	Email                string    `json:"email" gorm:"size:255;index"`
	CanViewNotifications bool      `json:"can_view_notifications"`
	CreatedAt            time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }
