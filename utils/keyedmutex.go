package utils

import (
	"sync"
)

// KeyedMutex обеспечивает взаимное исключение по строковому ключу:
// операции с разными ключами выполняются параллельно, операции с
// одним ключом — последовательно.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex создает новый KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock блокирует ключ
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, exists := km.locks[key]
	if !exists {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

// Unlock разблокирует ключ и удаляет его, если он больше никем не удерживается
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, exists := km.locks[key]
	if !exists {
		km.mu.Unlock()
		panic("utils: unlock of unknown key " + key)
	}
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	l.mu.Unlock()
}
