package state

import (
	"strings"
)

// Category — категория телеметрии.
type Category string

const (
	CategoryStation   Category = "station"
	CategoryAGV       Category = "agv"
	CategoryConveyor  Category = "conveyor"
	CategoryWarehouse Category = "warehouse"
	CategoryAlert     Category = "alert"
	CategoryOrder     Category = "order"
	CategoryResponse  Category = "response"
)

// Categories возвращает все категории в порядке обработки.
func Categories() []Category {
	return []Category{
		CategoryStation, CategoryAGV, CategoryConveyor, CategoryWarehouse,
		CategoryAlert, CategoryOrder, CategoryResponse,
	}
}

// DefaultTopicRoot — корень топиков по умолчанию.
const DefaultTopicRoot = "AgenticFactoria"

// Wildcard — подстановка одного сегмента топика.
const Wildcard = "+"

// Topic — распознанный топик телеметрии.
type Topic struct {
	Category Category
	LineID   string // пусто для склада и заказов
	DeviceID string // пусто для линейных топиков
}

// ParseTopic распознаёт топик относительно корня.
//
// Форматы:
//
//	{root}/{line}/station/{id}/status
//	{root}/{line}/agv/{id}/status
//	{root}/{line}/conveyor/{id}/status
//	{root}/warehouse/{id}/status
//	{root}/{line}/alerts
//	{root}/orders/new
//	{root}/response/{line}
func ParseTopic(root, topic string) (Topic, bool) {
	rest, ok := strings.CutPrefix(topic, root+"/")
	if !ok {
		return Topic{}, false
	}
	parts := strings.Split(rest, "/")

	switch len(parts) {
	case 2:
		switch {
		case parts[0] == "orders" && parts[1] == "new":
			return Topic{Category: CategoryOrder}, true
		case parts[0] == "response" && parts[1] != "":
			return Topic{Category: CategoryResponse, LineID: parts[1]}, true
		case parts[1] == "alerts" && parts[0] != "":
			return Topic{Category: CategoryAlert, LineID: parts[0]}, true
		}
	case 3:
		if parts[0] == "warehouse" && parts[1] != "" && parts[2] == "status" {
			return Topic{Category: CategoryWarehouse, DeviceID: parts[1]}, true
		}
	case 4:
		if parts[0] == "" || parts[2] == "" || parts[3] != "status" {
			return Topic{}, false
		}
		// ID устройства — сегмент перед status
		switch Category(parts[1]) {
		case CategoryStation, CategoryAGV, CategoryConveyor:
			return Topic{Category: Category(parts[1]), LineID: parts[0], DeviceID: parts[2]}, true
		}
	}

	return Topic{}, false
}

// StatusTopic строит топик статуса устройства линии.
func StatusTopic(root, lineID string, category Category, deviceID string) string {
	return root + "/" + lineID + "/" + string(category) + "/" + deviceID + "/status"
}

// WarehouseTopic строит топик статуса склада.
func WarehouseTopic(root, warehouseID string) string {
	return root + "/warehouse/" + warehouseID + "/status"
}

// AlertsTopic строит топик тревог линии.
func AlertsTopic(root, lineID string) string {
	return root + "/" + lineID + "/alerts"
}

// OrdersTopic строит топик новых заказов.
func OrdersTopic(root string) string {
	return root + "/orders/new"
}

// CommandTopic строит топик команд линии.
func CommandTopic(root, lineID string) string {
	return root + "/" + lineID + "/command"
}

// ResponseTopic строит топик ответов на команды линии.
func ResponseTopic(root, lineID string) string {
	return root + "/response/" + lineID
}

// SubscriptionTopics возвращает шаблоны топиков, которые слушает линия.
func SubscriptionTopics(root, lineID string) []string {
	return []string{
		StatusTopic(root, lineID, CategoryStation, Wildcard),
		StatusTopic(root, lineID, CategoryAGV, Wildcard),
		StatusTopic(root, lineID, CategoryConveyor, Wildcard),
		WarehouseTopic(root, Wildcard),
		AlertsTopic(root, lineID),
		OrdersTopic(root),
		ResponseTopic(root, lineID),
	}
}
