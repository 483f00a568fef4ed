// Package bolt implementa el contador de numeración en un archivo BoltDB embebido.
// Sirve a despliegues de un único terminal sin base de datos externa: el archivo
// queda bloqueado por el proceso que lo abre.
package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var rootBucket = []byte("fiscal_sequences")

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo guarda un sub-bucket por clave y usa su secuencia interna como contador.
// Las transacciones de escritura de Bolt son serializadas, así que NextSequence es atómico.
type SequenceRepo struct {
	db *bolt.DB
}

// Open abre (o crea) el archivo y asegura el bucket raíz.
func Open(path string) (*SequenceRepo, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("abrir bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("crear bucket: %w", err)
	}
	return &SequenceRepo{db: db}, nil
}

// Close libera el bloqueo del archivo.
func (r *SequenceRepo) Close() error {
	return r.db.Close()
}

// Next incrementa dentro de una transacción de escritura; el commit hace fsync antes de devolver.
func (r *SequenceRepo) Next(ctx context.Context, key entity.SequenceKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n uint64
	err := r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(key.String()))
		if err != nil {
			return err
		}
		n, err = b.NextSequence()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("bolt next %s: %w", key, err)
	}
	return int64(n), nil
}

func (r *SequenceRepo) Current(ctx context.Context, key entity.SequenceKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n uint64
	err := r.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(rootBucket).Bucket([]byte(key.String())); b != nil {
			n = b.Sequence()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt current %s: %w", key, err)
	}
	return int64(n), nil
}

func (r *SequenceRepo) Seed(ctx context.Context, key entity.SequenceKey, last int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if last < 0 {
		return fmt.Errorf("bolt seed %s: número negativo %d", key, last)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if root.Bucket([]byte(key.String())) != nil {
			return nil
		}
		b, err := root.CreateBucket([]byte(key.String()))
		if err != nil {
			return err
		}
		return b.SetSequence(uint64(last))
	})
}
