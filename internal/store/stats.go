package store

// Statistics summarizes device state for the dashboard quick-status card.
type Statistics struct {
	LightsOn      int `json:"lights_on"`
	LightsTotal   int `json:"lights_total"`
	DoorsUnlocked int `json:"doors_unlocked"`
	DoorsTotal    int `json:"doors_total"`
	WindowsOpen   int `json:"windows_open"`
	WindowsTotal  int `json:"windows_total"`
	DevicesOnline int `json:"devices_online"`
	DevicesTotal  int `json:"devices_total"`
}

func ComputeStatistics(devices []Device) Statistics {
	var s Statistics
	s.DevicesTotal = len(devices)
	for _, d := range devices {
		if d.Status == DeviceStatusOnline {
			s.DevicesOnline++
		}
		switch d.Type {
		case DeviceLight:
			s.LightsTotal++
			if d.LastState == StateOn {
				s.LightsOn++
			}
		case DeviceDoor:
			s.DoorsTotal++
			if d.LastState == StateUnlocked {
				s.DoorsUnlocked++
			}
		case DeviceWindow:
			s.WindowsTotal++
			if d.LastState == StateOpened {
				s.WindowsOpen++
			}
		}
	}
	return s
}
