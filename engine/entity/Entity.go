package entity

import (
	"fmt"
	"image/color"
	"reflect"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/syncvar"
)

// Vector3 is the type of entity positions and rotations
type Vector3 = common.Vector3

// Entity is the replicated object. Custom entity types embed Entity and are registered by RegisterEntity.
//
// ID is NilEntityID until the entity is registered in its session. Exactly one participant holds authority
// over an entity: only the authority holder's writes are sent to other participants.
type Entity struct {
	ID      common.EntityID
	TypeKey string
	I       IEntity
	V       reflect.Value

	session        *Session
	typeDesc       *EntityTypeDesc
	position       Vector3
	rotation       Vector3
	parentID       common.EntityID
	authority      common.ParticipantID
	vars           []syncvar.Var
	varsByName     map[string]syncvar.Var
	interpolated   []syncvar.Interpolated
	declaring      bool
	destroyed      bool
	transformDirty bool
	createSeq      uint64
	createToken    uint32
}

// IEntity declares functions that is defined in Entity
type IEntity interface {
	// Entity Lifetime
	OnInit()               // Called when initializing entity struct, declare replicated variables here
	OnFirstCreate()        // Called once per entity ID on the authority holder when the entity is created for the first time
	OnCreated()            // Called on every participant when the entity is created, restored or enters interest
	OnForget(deleted bool) // Called when the entity is deleted or leaves interest

	DescribeEntityType(desc *EntityTypeDesc) // Define entity type properties in this function
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%s>", e.TypeKey, e.ID)
}

func (e *Entity) init(session *Session, desc *EntityTypeDesc, entityInstance reflect.Value) {
	e.ID = common.NilEntityID
	e.TypeKey = desc.TypeKey
	e.V = entityInstance
	e.I = entityInstance.Interface().(IEntity)
	e.session = session
	e.typeDesc = desc
	e.parentID = common.NilEntityID
	e.varsByName = map[string]syncvar.Var{}

	e.declaring = true
	e.I.OnInit()
	e.declaring = false
}

// Session returns the session the entity belongs to
func (e *Entity) Session() *Session {
	return e.session
}

// Position returns the entity position
func (e *Entity) Position() Vector3 {
	return e.position
}

// Rotation returns the entity rotation
func (e *Entity) Rotation() Vector3 {
	return e.rotation
}

// SetPosition sets the entity position, replicated on the next tick if the entity is authoritative
func (e *Entity) SetPosition(pos Vector3) {
	e.SetTransform(pos, e.rotation)
}

// SetRotation sets the entity rotation
func (e *Entity) SetRotation(rot Vector3) {
	e.SetTransform(e.position, rot)
}

// SetTransform sets position and rotation together
func (e *Entity) SetTransform(pos, rot Vector3) {
	if pos == e.position && rot == e.rotation {
		return
	}
	e.position, e.rotation = pos, rot
	e.transformDirty = true
	e.session.markDirty(e)
}

// DistanceTo calculates the distance between two entities
func (e *Entity) DistanceTo(other *Entity) float64 {
	return e.position.DistanceTo(other.position)
}

// ParentID returns the ID of the parent entity, NilEntityID if the entity has no parent
func (e *Entity) ParentID() common.EntityID {
	return e.parentID
}

// Parent returns the parent entity if it is known to the session
func (e *Entity) Parent() *Entity {
	if e.parentID.IsNil() {
		return nil
	}
	return e.session.entities.get(e.parentID)
}

// Children returns the known children sorted by ID
func (e *Entity) Children() []*Entity {
	var children []*Entity
	e.ForEachChild(func(child *Entity) bool {
		children = append(children, child)
		return true
	})
	return children
}

// ForEachChild calls cb for each known child in ID order until cb returns false
func (e *Entity) ForEachChild(cb func(child *Entity) bool) {
	if e.ID.IsNil() {
		return
	}
	for _, cid := range e.session.entities.childrenOf(e.ID).ToSortedList() {
		if child := e.session.entities.get(cid); child != nil {
			if !cb(child) {
				return
			}
		}
	}
}

// Authority returns the participant holding authority over the entity
func (e *Entity) Authority() common.ParticipantID {
	return e.authority
}

// IsAuthoritative returns if the local participant holds authority over the entity
func (e *Entity) IsAuthoritative() bool {
	return e.authority == e.session.participant
}

// IsRegistered returns if the entity has an ID and is known to its session
func (e *Entity) IsRegistered() bool {
	return !e.ID.IsNil() && !e.destroyed && e.session.entities.get(e.ID) == e
}

// IsDestroyed returns if the entity is deleted or forgotten
func (e *Entity) IsDestroyed() bool {
	return e.destroyed
}

// IsPersistent returns if the entity is written to save snapshots
func (e *Entity) IsPersistent() bool {
	return e.typeDesc.persistent
}

// NetworkRadius returns the interest radius of the entity type
func (e *Entity) NetworkRadius() float64 {
	return e.typeDesc.networkRadius
}

// Destroy deletes the entity, see Session.Delete
func (e *Entity) Destroy() error {
	return e.session.Delete(e)
}

// Vars returns the declared variables in index order
func (e *Entity) Vars() []syncvar.Var {
	return e.vars
}

// Var returns the declared variable of the name, or nil
func (e *Entity) Var(name string) syncvar.Var {
	return e.varsByName[name]
}

// DeclareVar declares a replicated variable, only allowed in OnInit
func (e *Entity) DeclareVar(name string, v syncvar.Var) syncvar.Var {
	if !e.declaring {
		gwlog.Panicf("%s: variable %s must be declared in OnInit", e, name)
	}
	if _, ok := e.varsByName[name]; ok {
		gwlog.Panicf("%s: variable %s declared twice", e, name)
	}

	v.Bind(e, len(e.vars), name)
	e.vars = append(e.vars, v)
	e.varsByName[name] = v
	if iv, ok := v.(syncvar.Interpolated); ok {
		e.interpolated = append(e.interpolated, iv)
	}
	return v
}

// DeclareInt declares a replicated integer
func (e *Entity) DeclareInt(name string, initial int64) *syncvar.Int {
	return e.DeclareVar(name, syncvar.NewInt(initial)).(*syncvar.Int)
}

// DeclareFloat declares a replicated float
func (e *Entity) DeclareFloat(name string, initial float64) *syncvar.Float {
	return e.DeclareVar(name, syncvar.NewFloat(initial)).(*syncvar.Float)
}

// DeclareString declares a replicated string
func (e *Entity) DeclareString(name string, initial string) *syncvar.String {
	return e.DeclareVar(name, syncvar.NewString(initial)).(*syncvar.String)
}

// DeclareVector declares a replicated vector
func (e *Entity) DeclareVector(name string, initial Vector3) *syncvar.Vector {
	return e.DeclareVar(name, syncvar.NewVector(initial)).(*syncvar.Vector)
}

// DeclareColor declares a replicated color
func (e *Entity) DeclareColor(name string, initial color.RGBA) *syncvar.Color {
	return e.DeclareVar(name, syncvar.NewColor(initial)).(*syncvar.Color)
}

// DeclareCounts declares a replicated multiset
func (e *Entity) DeclareCounts(name string) *syncvar.Counts {
	return e.DeclareVar(name, syncvar.NewCounts()).(*syncvar.Counts)
}

// DeclareList declares a replicated list on the entity
func DeclareList[T any](e *Entity, name string, initial ...T) *syncvar.List[T] {
	return e.DeclareVar(name, syncvar.NewList[T](initial...)).(*syncvar.List[T])
}

// DeclarePairList declares a replicated key value list on the entity
func DeclarePairList[K comparable, V any](e *Entity, name string) *syncvar.PairList[K, V] {
	return e.DeclareVar(name, syncvar.NewPairList[K, V]()).(*syncvar.PairList[K, V])
}

// VarDirty is called by a declared variable when it is written
func (e *Entity) VarDirty(index int) {
	e.session.markDirty(e)
}

// PostEvent queues a variable change callback to the session events
func (e *Entity) PostEvent(f func()) {
	e.session.events.Post(f)
}

func (e *Entity) hasDirtyVars() bool {
	for _, v := range e.vars {
		if v.IsDirty() {
			return true
		}
	}
	return false
}

// Default handlers

// OnInit is called when the entity struct is initialized, override to declare variables
//
// Can override this function in custom entity type
func (e *Entity) OnInit() {
}

// OnFirstCreate is called once per entity ID on the authority holder
//
// Can override this function in custom entity type
func (e *Entity) OnFirstCreate() {
}

// OnCreated is called when entity is created on a participant
//
// Can override this function in custom entity type
func (e *Entity) OnCreated() {
}

// OnForget is called when the entity is deleted or leaves interest
//
// Can override this function in custom entity type
func (e *Entity) OnForget(deleted bool) {
}

// DescribeEntityType is called once when the entity type is registered
//
// Can override this function in custom entity type
func (e *Entity) DescribeEntityType(desc *EntityTypeDesc) {
}
