package sqlinline

const QCreateJobsTable = `--sql 0b6f3c2e-5d1a-4c8e-9f47-2a61d8e0c9b4
create table if not exists jobs (
    id text primary key,
    output_type text not null default '',
    provider text not null default '',
    status text not null,
    payload jsonb,
    error_detail text not null default '',
    fingerprint text not null default '',
    submitted_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists jobs_fingerprint_idx on jobs (fingerprint) where status = 'completed';
create index if not exists jobs_stale_idx on jobs (updated_at) where status in ('pending', 'processing');
`

const QUpsertJob = `--sql 3c9a7e41-8b2d-4f06-a5c1-7d3e92b0f816
insert into jobs (id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::text, $7::text, $8::timestamptz, now())
on conflict (id) do update set
    output_type = excluded.output_type,
    provider = excluded.provider,
    status = excluded.status,
    payload = excluded.payload,
    error_detail = excluded.error_detail,
    fingerprint = case when excluded.fingerprint = '' then jobs.fingerprint else excluded.fingerprint end,
    updated_at = now()
where jobs.status = excluded.status
   or (jobs.status not in ('completed', 'failed')
       and (case excluded.status when 'pending' then 1 when 'processing' then 2 when 'completed' then 3 when 'failed' then 3 else 0 end)
         > (case jobs.status when 'pending' then 1 when 'processing' then 2 else 0 end));
`

const QUpdateJob = `--sql 7e21d5b8-46c0-4a9f-b3e7-c58f1a2d6043
update jobs
set status = $2::text,
    payload = $3::jsonb,
    error_detail = $4::text,
    provider = case when $5::text = '' then provider else $5::text end,
    updated_at = now()
where id = $1::text
  and (status = $2::text
       or (status not in ('completed', 'failed')
           and (case $2::text when 'pending' then 1 when 'processing' then 2 when 'completed' then 3 when 'failed' then 3 else 0 end)
             > (case status when 'pending' then 1 when 'processing' then 2 else 0 end)));
`

const QSelectJobByID = `--sql a4d8f2c1-93e7-4b5a-8c06-1f7e2b9d3a58
select id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at
from jobs
where id = $1::text;
`

const QSelectCompletedJobByFingerprint = `--sql c2e5b7a9-1d48-4f3c-96a0-8b7d4e1f2c63
select id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at
from jobs
where fingerprint = $1::text
  and status = 'completed'
order by updated_at desc
limit 1;
`

const QListStaleJobs = `--sql 5f1b8d3e-a7c2-4e96-b0d4-3e9a6c2f7b15
select id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at
from jobs
where status in ('pending', 'processing')
  and updated_at < now() - make_interval(secs => $1::double precision)
order by updated_at asc
limit $2::int;
`

const QClaimStaleJob = `--sql e8a3c6f0-2b7d-4d15-9e48-6a1c5b3f9d27
with next_job as (
    select id
    from jobs
    where status in ('pending', 'processing')
      and updated_at < now() - make_interval(secs => $1::double precision)
    order by updated_at asc
    for update skip locked
    limit 1
),
claimed as (
    update jobs
    set updated_at = now()
    where id in (select id from next_job)
    returning id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at
)
select * from claimed;
`
