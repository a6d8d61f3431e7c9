package network

// DefaultDevices returns the home topology shown on the dashboard: every
// device hangs off the fttr gateway, and the living-room speaker also
// pairs with the TV.
func DefaultDevices() []Device {
	gateway := []string{"fttr"}
	return []Device{
		{ID: "tv1", Name: "客厅电视", Type: "tv", Status: Online, Active: true, Connections: gateway, Position: Position{-6, 0.3, 0}},
		{ID: "tv2", Name: "主卧电脑", Type: "livingcomputer", Status: Idle, Active: false, Connections: gateway, Position: Position{-7, 1, -6}},
		{ID: "speaker1", Name: "客厅音箱", Type: "speaker", Status: Online, Active: true, Connections: []string{"fttr", "tv1"}, Position: Position{-6, 0.3, -3}},
		{ID: "speaker2", Name: "主卧音箱", Type: "speaker", Status: Offline, Active: false, Connections: gateway, Position: Position{-5, 0.3, -6}},
		{ID: "ac1", Name: "客厅空调", Type: "ac", Status: Online, Active: true, Connections: gateway, Position: Position{6, 2, -3.5}},
		{ID: "ac2", Name: "客卧空调", Type: "ac", Status: Online, Active: false, Connections: gateway, Position: Position{0, 2, -8.5}},
		{ID: "ac3", Name: "客卧空调", Type: "ac", Status: Offline, Active: false, Connections: gateway, Position: Position{5, 2, -8.5}},
		{ID: "pc1", Name: "工作电脑", Type: "pc", Status: Online, Active: true, Connections: gateway, Position: Position{5, 0.3, -5.5}},
		{ID: "light1", Name: "客厅灯", Type: "light", Status: Online, Active: true, Connections: gateway, Position: Position{0, 0.3, 2}},
		{ID: "vacuum1", Name: "智能扫地机器人", Type: "vacuum", Status: Online, Active: true, Connections: gateway, Position: Position{1, 0.1, -3}},
	}
}
