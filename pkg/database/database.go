package database

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	scribble "github.com/nanobox-io/golang-scribble"
)

// JSON document store, one directory per collection and one file per document.
// Writes that read then modify a document hold the collection mutex, so field updates
// on the same collection never interleave.
type Database struct {
	dir     string
	mutex   sync.Mutex
	mutexes map[string]*sync.Mutex
	driver  *scribble.Driver
	log     logg.Logg
}

func New(dir string, log logg.Logg) (database *Database, err error) {
	var driver *scribble.Driver
	driver, err = scribble.New(dir, nil)
	if err != nil {
		err = errors.Wrapv(err, "unable to create new database driver for directory", dir)
		return
	}

	database = &Database{
		dir:     dir,
		mutexes: make(map[string]*sync.Mutex),
		driver:  driver,
		log:     log,
	}
	return
}

func (d *Database) TableExists(collection string) bool {
	_, err := os.Stat(filepath.Join(d.dir, collection))
	return !os.IsNotExist(err)
}

// Document keys are file names under the collection directory
func ValidKey(resource string) bool {
	return strings.TrimSpace(resource) != "" && !strings.ContainsAny(resource, `/\`) && !strings.Contains(resource, "..")
}

func (d *Database) write(collection, resource string, v interface{}) (err error) {
	if !ValidKey(resource) {
		err = errors.Kindf(errors.BadRequest, "invalid document key %q in %s", resource, collection)
		return
	}
	if err = d.driver.Write(collection, resource, v); err != nil {
		err = errors.Wrapv(err, "unable to write document", collection, resource)
	}
	return
}

// Insert-if-absent, the first write for a resource wins
func (d *Database) writeIfNotExists(collection, resource string, obj interface{}) (created bool, err error) {
	mutex := d.getOrCreateMutex(collection)
	mutex.Lock()
	defer mutex.Unlock()

	var exists bool
	if exists, err = d.exists(collection, resource); err != nil {
		err = errors.WithMessage(err, "unable to get \"exists\" value")
		return
	}
	if exists {
		d.log.WithField("collection", collection).WithField("resource", resource).Debug("document exists, not overwriting")
		return
	}

	if err = d.write(collection, resource, obj); err != nil {
		return
	}
	created = true

	return
}

// Read a document into obj, found is false when it does not exist
func (d *Database) read(collection, resource string, obj interface{}) (found bool, err error) {
	if !ValidKey(resource) || !d.TableExists(collection) {
		return
	}

	if err = d.driver.Read(collection, resource, obj); err != nil {
		if os.IsNotExist(err) {
			err = nil
			return
		}
		err = errors.Wrapv(err, "unable to read document", collection, resource)
		return
	}
	found = true

	return
}

// Read-modify-write of one document under the collection mutex. Nothing is written when
// the document does not exist or modify returns an error.
func (d *Database) modify(collection, resource string, obj interface{}, modify func() error) (found bool, err error) {
	mutex := d.getOrCreateMutex(collection)
	mutex.Lock()
	defer mutex.Unlock()

	if found, err = d.read(collection, resource, obj); err != nil || !found {
		return
	}
	if err = modify(); err != nil {
		return
	}
	err = d.write(collection, resource, obj)

	return
}

func (d *Database) exists(collection, resource string) (result bool, err error) {
	if !ValidKey(resource) || !d.TableExists(collection) {
		return
	}

	var raw interface{}
	if readErr := d.driver.Read(collection, resource, &raw); readErr != nil {
		if os.IsNotExist(readErr) {
			return
		}
		err = readErr
		return
	}
	result = true

	return
}

func (d *Database) readAll(collection string) (rows []string, err error) {
	if !d.TableExists(collection) {
		return
	}
	if rows, err = d.driver.ReadAll(collection); err != nil {
		err = errors.Wrapv(err, "unable to read collection", collection)
	}
	return
}

// getOrCreateMutex returns the collection specific mutex guarding read-modify-write cycles
func (d *Database) getOrCreateMutex(collection string) *sync.Mutex {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	m, ok := d.mutexes[collection]
	if !ok {
		m = &sync.Mutex{}
		d.mutexes[collection] = m
	}

	return m
}

func CreateHashID(firstInput interface{}, otherInputs ...interface{}) (result string) {
	str := fmt.Sprintf("%v", firstInput)
	for _, otherInput := range otherInputs {
		str += fmt.Sprintf("-%v", otherInput)
	}

	h := sha1.New()
	h.Write([]byte(str))

	return fmt.Sprintf("%x", h.Sum(nil))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
