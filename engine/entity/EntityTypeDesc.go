package entity

import (
	"math"
	"reflect"
	"sort"

	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/gwlog"
)

var (
	registeredEntityTypes = map[string]*EntityTypeDesc{}
)

// EntityTypeDesc is the entity type description for registering entity types
type EntityTypeDesc struct {
	TypeKey       string
	persistent    bool
	networkRadius float64
	entityType    reflect.Type
}

// SetPersistent sets if entities of this type are written to save snapshots
func (desc *EntityTypeDesc) SetPersistent(persistent bool) *EntityTypeDesc {
	desc.persistent = persistent
	return desc
}

// SetNetworkRadius sets the interest radius of this type, math.Inf(1) makes it visible to every participant
func (desc *EntityTypeDesc) SetNetworkRadius(radius float64) *EntityTypeDesc {
	if radius < 0 || math.IsNaN(radius) {
		gwlog.Panicf("entity type %s: invalid network radius %v", desc.TypeKey, radius)
	}

	desc.networkRadius = radius
	return desc
}

// IsPersistent returns if entities of this type are saved
func (desc *EntityTypeDesc) IsPersistent() bool {
	return desc.persistent
}

// NetworkRadius returns the interest radius of this type
func (desc *EntityTypeDesc) NetworkRadius() float64 {
	return desc.networkRadius
}

func (desc *EntityTypeDesc) inRadius(viewpoint, pos Vector3) bool {
	if math.IsInf(desc.networkRadius, 1) {
		return true
	}
	return viewpoint.DistanceTo(pos) <= desc.networkRadius
}

// RegisterEntity registers custom entity type and define entity behaviors.
//
// The entity must be a pointer to a struct embedding Entity. DescribeEntityType of the entity is called once
// with the new EntityTypeDesc.
func RegisterEntity(typeKey string, entity IEntity) *EntityTypeDesc {
	if _, ok := registeredEntityTypes[typeKey]; ok {
		gwlog.Fatalf("RegisterEntity: Entity type %s already registered", typeKey)
	}

	entityVal := reflect.ValueOf(entity)
	entityType := entityVal.Type()

	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}
	if field, ok := entityType.FieldByName("Entity"); !ok || field.Type != reflect.TypeOf(Entity{}) {
		gwlog.Fatalf("RegisterEntity: %s must embed entity.Entity", entityType.Name())
	}

	entityTypeDesc := &EntityTypeDesc{
		TypeKey:       typeKey,
		persistent:    false,
		networkRadius: config.Default().Interest.DefaultRadius,
		entityType:    entityType,
	}
	registeredEntityTypes[typeKey] = entityTypeDesc

	gwlog.Infof(">>> RegisterEntity %s => %s <<<", typeKey, entityType.Name())
	entity.DescribeEntityType(entityTypeDesc)
	return entityTypeDesc
}

// GetEntityTypeDesc returns the registered type of the type key, or nil
func GetEntityTypeDesc(typeKey string) *EntityTypeDesc {
	return registeredEntityTypes[typeKey]
}

// RegisteredTypeKeys returns the sorted type keys of all registered entity types
func RegisteredTypeKeys() []string {
	keys := make([]string, 0, len(registeredEntityTypes))
	for key := range registeredEntityTypes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ApplyInterestConfig overrides the network radius of registered types from the [interest] config
func ApplyInterestConfig(cfg *config.InterestConfig) {
	for _, key := range RegisteredTypeKeys() {
		if radius, ok := cfg.RadiusOf(key); ok {
			gwlog.Infof("Entity type %s: network radius %v => %v", key, registeredEntityTypes[key].networkRadius, radius)
			registeredEntityTypes[key].SetNetworkRadius(radius)
		}
	}
}
